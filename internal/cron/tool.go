package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// Tool exposes job management to the agent so users can say
// "remind me every 10 minutes" and have it stick.
type Tool struct {
	store *Store
	gron  *gronx.Gronx
}

func NewTool(store *Store) *Tool {
	return &Tool{store: store, gron: gronx.New()}
}

func (t *Tool) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name: "cron",
		Description: "Manage recurring reminders and background tasks. " +
			"Use whenever the user asks to be reminded or wants something done on a schedule. " +
			"action=add creates a task, action=list shows them, action=remove deletes one.",
		// Stateful, never cache.
		Cacheable: false,
		Schema: tools.ObjectSchema(map[string]*tools.Schema{
			"action": {
				Type:        "string",
				Description: "What to do.",
				Enum:        []any{"add", "list", "remove"},
			},
			"message":       tools.StringProp("Prompt to execute when the task fires. Required for add."),
			"every_seconds": {Type: "number", Description: "Interval in seconds for recurring tasks."},
			"schedule":      tools.StringProp("Cron expression (e.g. '0 9 * * *') as an alternative to every_seconds."),
			"job_id":        tools.StringProp("ID of the task to remove. Required for remove."),
		}, "action"),
	}
}

func (t *Tool) Run(_ context.Context, args map[string]any, tc tools.Context) *tools.Result {
	switch action := coerceAction(args); action {
	case "list":
		return t.list()
	case "remove":
		return t.remove(args)
	case "add":
		return t.add(args, tc)
	default:
		return tools.Fail(fmt.Sprintf("unknown action: %s", action))
	}
}

func (t *Tool) list() *tools.Result {
	jobs := t.store.Jobs()
	if len(jobs) == 0 {
		return tools.Ok("No scheduled tasks.")
	}
	lines := []string{"Scheduled tasks:"}
	for _, job := range jobs {
		when := fmt.Sprintf("every %ds", job.EverySeconds)
		if job.Schedule != "" {
			when = fmt.Sprintf("cron %q", job.Schedule)
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", job.ID, when, job.Message))
	}
	return tools.Ok(strings.Join(lines, "\n"))
}

func (t *Tool) remove(args map[string]any) *tools.Result {
	jobID, _ := args["job_id"].(string)
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return tools.Fail("job_id is required to remove a task")
	}
	removed, err := t.store.Remove(jobID)
	if err != nil {
		return tools.Fail(fmt.Sprintf("remove task: %v", err))
	}
	if !removed {
		return tools.Fail(fmt.Sprintf("task %s not found", jobID))
	}
	return tools.Ok(fmt.Sprintf("Removed task %s", jobID))
}

func (t *Tool) add(args map[string]any, tc tools.Context) *tools.Result {
	message, _ := args["message"].(string)
	message = strings.TrimSpace(message)
	if message == "" {
		return tools.Fail("message is required to add a task")
	}

	job := Job{
		ID:        uuid.NewString()[:8],
		Message:   message,
		Channel:   tc.Channel,
		ChatID:    tc.ChatID,
		Enabled:   true,
		CreatedAt: time.Now(),
	}

	schedule, _ := args["schedule"].(string)
	schedule = strings.TrimSpace(schedule)
	every := coerceSeconds(args["every_seconds"])
	switch {
	case schedule != "":
		if !t.gron.IsValid(schedule) {
			return tools.Fail(fmt.Sprintf("invalid cron expression %q", schedule))
		}
		job.Schedule = schedule
	case every > 0:
		job.EverySeconds = every
	default:
		return tools.Fail("either every_seconds (positive) or schedule is required to add a task")
	}

	if err := t.store.Add(job); err != nil {
		return tools.Fail(fmt.Sprintf("save task: %v", err))
	}
	when := fmt.Sprintf("every %d seconds", job.EverySeconds)
	if job.Schedule != "" {
		when = fmt.Sprintf("on schedule %q", job.Schedule)
	}
	return tools.OkData(
		fmt.Sprintf("Added task %s: %q %s.", job.ID, job.Message, when),
		map[string]any{"job_id": job.ID},
	)
}

func coerceAction(args map[string]any) string {
	raw, _ := args["action"].(string)
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "create", "new":
		return "add"
	case "delete":
		return "remove"
	}
	return raw
}

// coerceSeconds tolerates the numeric shapes providers emit for
// every_seconds.
func coerceSeconds(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}
