package nodes

import (
	"context"
	"strings"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/logger"
	"ruwave_bot/pkg"
)

// PriceMatcher finds the price entry whose keyword occurs in a message
type PriceMatcher interface {
	Match(ctx context.Context, message string) (pkg.PriceEntry, bool)
}

const dataPriceEntry = "price_entry"

// IntentNode picks exactly one branch for a message: price, playlist or fallback
type IntentNode struct {
	prices  PriceMatcher
	phrases []string
}

// NewIntentNode creates the router node; phrases are matched case-insensitively
func NewIntentNode(prices PriceMatcher, phrases []string) *IntentNode {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &IntentNode{prices: prices, phrases: normalized}
}

// Execute classifies the message; the flow edges pick the next node from the intent
func (n *IntentNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	intent, entry := n.Classify(ctx, input.UserMessage)

	data := map[string]any{core.DataIntent: intent}
	if intent == pkg.IntentPrice {
		data[dataPriceEntry] = entry
	}

	logger.Debug().Str("intent", string(intent)).Msg("🧭 Message routed")

	return core.NodeOutput{Data: data}, nil
}

// Classify applies the fixed priority: price keyword, playlist phrase, fallback
func (n *IntentNode) Classify(ctx context.Context, message string) (pkg.Intent, pkg.PriceEntry) {
	if entry, ok := n.prices.Match(ctx, message); ok {
		return pkg.IntentPrice, entry
	}

	lower := strings.ToLower(message)
	for _, phrase := range n.phrases {
		if strings.Contains(lower, phrase) {
			return pkg.IntentPlaylist, pkg.PriceEntry{}
		}
	}

	return pkg.IntentFallback, pkg.PriceEntry{}
}

// GetName returns the node name
func (n *IntentNode) GetName() string {
	return string(core.NodeTypeIntent)
}

// GetType returns the node type
func (n *IntentNode) GetType() core.NodeType {
	return core.NodeTypeIntent
}

// PriceNode answers with the matched price text
type PriceNode struct {
	prices PriceMatcher
}

// NewPriceNode creates the price branch
func NewPriceNode(prices PriceMatcher) *PriceNode {
	return &PriceNode{prices: prices}
}

// Execute formats the price reply; the entry comes from the intent node
func (p *PriceNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	entry, ok := input.Metadata[dataPriceEntry].(pkg.PriceEntry)
	if !ok {
		entry, ok = p.prices.Match(ctx, input.UserMessage)
	}
	if !ok {
		return core.NodeOutput{
			Data:     map[string]any{core.DataReply: noPriceReply},
			Error:    errNoPriceEntry,
			Complete: true,
		}, nil
	}

	logger.Debug().Str("keyword", entry.Keyword).Msg("💰 Price reply")

	return core.NodeOutput{
		Data: map[string]any{
			core.DataReply: FormatPrice(entry),
			"keyword":      entry.Keyword,
		},
		Complete: true,
	}, nil
}

// GetName returns the node name
func (p *PriceNode) GetName() string {
	return string(core.NodeTypePrice)
}

// GetType returns the node type
func (p *PriceNode) GetType() core.NodeType {
	return core.NodeTypePrice
}
