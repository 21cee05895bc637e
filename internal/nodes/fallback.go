package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/llm"
	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/metrics"
	"ruwave_bot/pkg"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// FallbackNode sends the message with the station persona to the chat model
type FallbackNode struct {
	model       llm.ChatModel
	template    prompt.ChatTemplate
	persona     string
	placeholder string
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
}

// FallbackOption customises a FallbackNode
type FallbackOption func(*FallbackNode)

// WithRateLimit bounds outbound completions to limit per second with burst
func WithRateLimit(limit float64, burst int) FallbackOption {
	return func(f *FallbackNode) {
		if limit > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(limit), max(burst, 1))
		}
	}
}

// WithFallbackMetrics records completion outcomes
func WithFallbackMetrics(m *metrics.Metrics) FallbackOption {
	return func(f *FallbackNode) { f.metrics = m }
}

// NewFallbackNode creates the fallback branch
func NewFallbackNode(model llm.ChatModel, persona, placeholder string, opts ...FallbackOption) *FallbackNode {
	f := &FallbackNode{
		model:       model,
		template:    createFallbackTemplate(),
		persona:     persona,
		placeholder: placeholder,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func createFallbackTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage("{persona}"),
		schema.UserMessage("{message}"),
	)
}

// Execute implements core.Node
func (f *FallbackNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	reply, err := f.Respond(ctx, input.UserMessage)
	if err != nil {
		return core.NodeOutput{}, err
	}
	return core.NodeOutput{
		Data:     map[string]any{core.DataReply: reply},
		Complete: true,
	}, nil
}

// Respond makes a single completion call. A failed call is returned as
// ErrExternalFetch; an empty answer becomes the placeholder.
func (f *FallbackNode) Respond(ctx context.Context, message string) (string, error) {
	start := time.Now()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: chat completion rate limit: %v", pkg.ErrExternalFetch, err)
		}
	}

	messages, err := f.template.Format(ctx, map[string]any{
		"persona": f.persona,
		"message": message,
	})
	if err != nil {
		return "", fmt.Errorf("error formatting fallback prompt: %w", err)
	}

	out, err := f.model.Generate(ctx, messages)
	f.metrics.ObserveExternal("llm", err)
	if err != nil {
		logger.Error().Err(err).Int("message_len", len(message)).Msg("❌ Chat completion failed")
		return "", fmt.Errorf("%w: chat completion: %v", pkg.ErrExternalFetch, err)
	}

	if out == nil || strings.TrimSpace(out.Content) == "" {
		logger.Warn().Msg("⚠️ Empty chat completion, using placeholder")
		return f.placeholder, nil
	}

	logger.Debug().
		Int("reply_len", len(out.Content)).
		Dur("elapsed", time.Since(start)).
		Msg("💬 Chat completion received")

	return out.Content, nil
}

// GetName returns the node name
func (f *FallbackNode) GetName() string {
	return string(core.NodeTypeFallback)
}

// GetType returns the node type
func (f *FallbackNode) GetType() core.NodeType {
	return core.NodeTypeFallback
}
