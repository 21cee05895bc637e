package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ruwave_bot/internal/llm"
	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/services"
	"ruwave_bot/internal/timewindow"
	"ruwave_bot/pkg"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// literal braces are doubled for the FString template
const timeWindowSystemPrompt = `You extract the broadcast time window from a radio listener's question.
The station time zone is {timezone}. The current moment is {now} ({weekday}).
Answer with one JSON object and nothing else:
{{"date":"DD.MM.YYYY","start":"HH:MM","end":"HH:MM"}}
Use start equal to end for a single moment. Use 00:00 to 23:59 when no time is given.
Use an empty date when the question names no time at all.`

// LLMTimeWindowResolver asks the chat model for the window and falls back to
// another resolver whenever the model fails or answers something unusable
type LLMTimeWindowResolver struct {
	model    llm.ChatModel
	template prompt.ChatTemplate
	fallback timewindow.Resolver
	loc      *time.Location
}

type modelWindow struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewLLMTimeWindowResolver creates the model-backed resolver
func NewLLMTimeWindowResolver(model llm.ChatModel, fallback timewindow.Resolver, loc *time.Location) *LLMTimeWindowResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &LLMTimeWindowResolver{
		model: model,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(timeWindowSystemPrompt),
			schema.UserMessage("{message}"),
		),
		fallback: fallback,
		loc:      loc,
	}
}

// Resolve implements timewindow.Resolver
func (r *LLMTimeWindowResolver) Resolve(ctx context.Context, text string, now time.Time) (timewindow.Resolution, error) {
	res, err := r.resolveWithModel(ctx, text, now.In(r.loc))
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Model time window unusable, using rules")
		return r.fallback.Resolve(ctx, text, now)
	}
	return res, nil
}

func (r *LLMTimeWindowResolver) resolveWithModel(ctx context.Context, text string, now time.Time) (timewindow.Resolution, error) {
	messages, err := r.template.Format(ctx, map[string]any{
		"timezone": r.loc.String(),
		"now":      now.Format("02.01.2006 15:04"),
		"weekday":  now.Weekday().String(),
		"message":  text,
	})
	if err != nil {
		return timewindow.Resolution{}, fmt.Errorf("error formatting time window prompt: %w", err)
	}

	out, err := r.model.Generate(ctx, messages)
	if err != nil {
		return timewindow.Resolution{}, fmt.Errorf("%w: time window completion: %v", pkg.ErrExternalFetch, err)
	}
	if out == nil {
		return timewindow.Resolution{}, fmt.Errorf("empty time window completion")
	}

	return parseModelWindow(out.Content)
}

// parseModelWindow decodes the model's JSON answer, tolerating a code fence around it
func parseModelWindow(content string) (timewindow.Resolution, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i >= 0 {
		if j := strings.LastIndex(content, "}"); j > i {
			content = content[i : j+1]
		}
	}

	var w modelWindow
	if err := sonic.UnmarshalString(content, &w); err != nil {
		return timewindow.Resolution{}, fmt.Errorf("error decoding time window %q: %w", content, err)
	}
	if strings.TrimSpace(w.Date) == "" {
		return timewindow.Resolution{}, fmt.Errorf("model found no date")
	}

	date, ok := services.ParseSheetDate(w.Date)
	if !ok {
		return timewindow.Resolution{}, fmt.Errorf("invalid date %q", w.Date)
	}
	start, ok := services.ParseSheetTime(w.Start)
	if !ok {
		return timewindow.Resolution{}, fmt.Errorf("invalid start %q", w.Start)
	}
	end, ok := services.ParseSheetTime(w.End)
	if !ok {
		return timewindow.Resolution{}, fmt.Errorf("invalid end %q", w.End)
	}
	if start > end {
		start, end = end, start
	}

	return timewindow.Resolution{
		Window:   pkg.TimeWindow{Date: date, Start: start, End: end},
		DateRule: timewindow.DateModel,
		TimeRule: timewindow.TimeModel,
	}, nil
}
