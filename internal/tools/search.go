package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	duckduckgoEndpoint = "https://api.duckduckgo.com/"
	coingeckoEndpoint  = "https://api.coingecko.com/api/v3/simple/price"
	maxRelatedTopics   = 5
)

type coinInfo struct {
	id, ticker, name string
}

var cryptoCoins = map[string]coinInfo{
	"btc":      {"bitcoin", "BTC", "Bitcoin"},
	"bitcoin":  {"bitcoin", "BTC", "Bitcoin"},
	"eth":      {"ethereum", "ETH", "Ethereum"},
	"ethereum": {"ethereum", "ETH", "Ethereum"},
	"sol":      {"solana", "SOL", "Solana"},
	"solana":   {"solana", "SOL", "Solana"},
	"doge":     {"dogecoin", "DOGE", "Dogecoin"},
	"dogecoin": {"dogecoin", "DOGE", "Dogecoin"},
	"xrp":      {"ripple", "XRP", "XRP"},
	"ada":      {"cardano", "ADA", "Cardano"},
	"ltc":      {"litecoin", "LTC", "Litecoin"},
	"bnb":      {"binancecoin", "BNB", "BNB"},
}

var quoteCurrencies = map[string]string{
	"usd": "usd", "usdt": "usd", "dollar": "usd", "dollars": "usd",
	"eur": "eur", "euro": "eur", "euros": "eur",
	"gbp": "gbp", "pound": "gbp", "pounds": "gbp",
	"tnd": "tnd", "dinar": "tnd",
}

var priceIntents = []string{"price", "worth", "rate", "quote", "market"}

// SearchTool queries the DuckDuckGo instant-answer API, with a CoinGecko
// fast path for crypto price questions.
type SearchTool struct {
	client *http.Client

	// endpoint overrides for tests
	ddgURL   string
	geckoURL string
}

func NewSearchTool() *SearchTool {
	return &SearchTool{
		client:   &http.Client{Timeout: 15 * time.Second},
		ddgURL:   duckduckgoEndpoint,
		geckoURL: coingeckoEndpoint,
	}
}

// Descriptor returns the search tool's registry entry. Results are cached
// with the query lowercased so case variants share an entry.
func (t *SearchTool) Descriptor() Descriptor {
	minLen := 1
	return Descriptor{
		Name:        "search",
		Description: "Search the public web for current information",
		Schema: ObjectSchema(map[string]*Schema{
			"query": {Type: "string", Description: "Search query", MinLength: &minLen},
		}, "query"),
		Cacheable:      true,
		TimeoutSeconds: 15,
		FingerprintNormalizer: func(args map[string]any) map[string]any {
			out := make(map[string]any, len(args))
			for k, v := range args {
				if s, ok := v.(string); ok {
					out[k] = strings.ToLower(s)
				} else {
					out[k] = v
				}
			}
			return out
		},
	}
}

func (t *SearchTool) Run(ctx context.Context, args map[string]any, _ Context) *Result {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return Fail("missing query")
	}

	if answer, ok := t.cryptoPrice(ctx, query); ok {
		return OkData(answer, map[string]any{"source": "coingecko"})
	}
	return t.instantAnswer(ctx, query)
}

// cryptoPrice answers "what is btc worth in eur" style queries from
// CoinGecko. Any failure falls through to the regular search path.
func (t *SearchTool) cryptoPrice(ctx context.Context, query string) (string, bool) {
	text := strings.ToLower(query)
	intent := false
	for _, kw := range priceIntents {
		if strings.Contains(text, kw) {
			intent = true
			break
		}
	}
	if !intent {
		return "", false
	}

	var coin coinInfo
	found := false
	for token, info := range cryptoCoins {
		if wordRe(token).MatchString(text) {
			coin = info
			found = true
			break
		}
	}
	if !found {
		return "", false
	}
	quote := "usd"
	for token, symbol := range quoteCurrencies {
		if wordRe(token).MatchString(text) {
			quote = symbol
			break
		}
	}

	params := url.Values{
		"ids":                     {coin.id},
		"vs_currencies":           {quote},
		"include_last_updated_at": {"true"},
	}
	var payload map[string]map[string]float64
	if err := t.getJSON(ctx, t.geckoURL+"?"+params.Encode(), &payload); err != nil {
		return "", false
	}
	prices, ok := payload[coin.id]
	if !ok {
		return "", false
	}
	value, ok := prices[quote]
	if !ok {
		return "", false
	}

	priceText := fmt.Sprintf("%.6f", value)
	if value >= 1 {
		priceText = fmt.Sprintf("%.2f", value)
	}
	answer := fmt.Sprintf("%s (%s) price: %s %s. Source: CoinGecko", coin.name, coin.ticker, priceText, strings.ToUpper(quote))
	if updated, ok := prices["last_updated_at"]; ok && updated > 0 {
		answer += fmt.Sprintf(" (%s)", time.Unix(int64(updated), 0).UTC().Format("2006-01-02 15:04 UTC"))
	}
	return answer + ".", true
}

func (t *SearchTool) instantAnswer(ctx context.Context, query string) *Result {
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_redirect":   {"1"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	var payload struct {
		Heading       string `json:"Heading"`
		AbstractText  string `json:"AbstractText"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := t.getJSON(ctx, t.ddgURL+"?"+params.Encode(), &payload); err != nil {
		return Fail(fmt.Sprintf("search request failed: %v", err))
	}

	var lines []string
	if payload.Heading != "" || payload.AbstractText != "" {
		lines = append(lines, strings.Trim(payload.Heading+": "+payload.AbstractText, ": "))
	}
	for i, topic := range payload.RelatedTopics {
		if i >= maxRelatedTopics {
			break
		}
		text := strings.TrimSpace(topic.Text)
		if text == "" {
			continue
		}
		if topic.FirstURL != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s)", text, topic.FirstURL))
		} else {
			lines = append(lines, "- "+text)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "No results from instant-answer API. Try a more specific query.")
	}
	return Ok(strings.Join(lines, "\n"))
}

func (t *SearchTool) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func wordRe(token string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
}
