package skills

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Selection pairs a chosen skill with why it was activated.
type Selection struct {
	Skill  *Skill
	Score  float64
	Reason string
}

// Selection reasons.
const (
	ReasonExplicit = "explicit"
	ReasonMatch    = "tfidf"
	ReasonRequires = "requires"
	ReasonPipeline = "pipeline"
)

// explicitScore outranks any TF-IDF match.
const explicitScore = 10.0

// maxPrimary bounds direct matches; requires and pipeline come on top.
const maxPrimary = 3

var skillTokenRe = regexp.MustCompile(`[a-zA-Z0-9_]{3,}`)

// SelectForMessage picks skills for a message. Explicit mentions ($name
// or the bare name) score highest; otherwise message tokens are matched
// TF-IDF style against description and tags. The primary skill's requires
// are added recursively; its pipeline entries are appended in order. On a
// requires cycle the primary is kept alone and a *CycleError is returned
// alongside the usable selection.
func (l *Library) SelectForMessage(text string) ([]Selection, error) {
	all := l.List()
	if len(all) == 0 {
		return nil, nil
	}
	lowered := strings.ToLower(text)
	byName := make(map[string]*Skill, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}

	idf := buildIDF(all)
	msgTokens := tokenSet(lowered)

	var matched []Selection
	for _, s := range all {
		name := strings.ToLower(s.Name)
		if strings.Contains(lowered, "$"+name) || wordMatch(lowered, name) {
			matched = append(matched, Selection{Skill: s, Score: explicitScore, Reason: ReasonExplicit})
			continue
		}
		if score := tfidfScore(msgTokens, s, idf); score > 0 {
			matched = append(matched, Selection{Skill: s, Score: score, Reason: ReasonMatch})
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Score != matched[j].Score {
			return matched[i].Score > matched[j].Score
		}
		return matched[i].Skill.Name < matched[j].Skill.Name
	})
	if len(matched) > maxPrimary {
		matched = matched[:maxPrimary]
	}

	primary := matched[0].Skill
	included := make(map[string]bool)
	for _, sel := range matched {
		included[sel.Skill.Name] = true
	}

	deps, cycleErr := resolveRequires(primary, byName)
	if cycleErr != nil {
		// Fall back to the primary alone.
		return matched[:1], cycleErr
	}
	out := matched
	for _, dep := range deps {
		if included[dep.Name] {
			continue
		}
		included[dep.Name] = true
		out = append(out, Selection{Skill: dep, Score: 0, Reason: ReasonRequires})
	}

	for _, name := range primary.Pipeline {
		step, ok := byName[name]
		if !ok || included[step.Name] {
			continue
		}
		included[step.Name] = true
		out = append(out, Selection{Skill: step, Score: 0, Reason: ReasonPipeline})
	}
	return out, nil
}

// resolveRequires walks the primary's requires transitively. The chain of
// the first cycle found is reported.
func resolveRequires(primary *Skill, byName map[string]*Skill) ([]*Skill, *CycleError) {
	var out []*Skill
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var visit func(s *Skill, chain []string) *CycleError
	visit = func(s *Skill, chain []string) *CycleError {
		onPath[s.Name] = true
		for _, reqName := range s.Requires {
			if onPath[reqName] {
				return &CycleError{Chain: append(append([]string{}, chain...), s.Name, reqName)}
			}
			req, ok := byName[reqName]
			if !ok || visited[reqName] {
				continue
			}
			visited[reqName] = true
			if err := visit(req, append(chain, s.Name)); err != nil {
				return err
			}
			out = append(out, req)
		}
		onPath[s.Name] = false
		return nil
	}

	visited[primary.Name] = true
	if err := visit(primary, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func buildIDF(all []*Skill) map[string]float64 {
	df := make(map[string]int)
	for _, s := range all {
		for token := range skillTokens(s) {
			df[token]++
		}
	}
	idf := make(map[string]float64, len(df))
	n := float64(len(all))
	for token, count := range df {
		idf[token] = math.Log(1 + n/float64(count))
	}
	return idf
}

func tfidfScore(msgTokens map[string]bool, s *Skill, idf map[string]float64) float64 {
	var score float64
	for token := range skillTokens(s) {
		if msgTokens[token] {
			score += idf[token]
		}
	}
	return score
}

func skillTokens(s *Skill) map[string]bool {
	doc := strings.ToLower(s.Description + " " + strings.Join(s.Tags, " "))
	return tokenSet(doc)
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"about": true, "your": true, "when": true, "where": true, "which": true,
	"should": true, "would": true, "could": true, "skill": true,
	"instructions": true, "the": true, "and": true, "for": true,
}

func tokenSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, token := range skillTokenRe.FindAllString(text, -1) {
		if !stopWords[token] {
			out[token] = true
		}
	}
	return out
}

func wordMatch(text, word string) bool {
	return regexp.MustCompile(`\b`+regexp.QuoteMeta(word)+`\b`).MatchString(text)
}
