package services

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"ruwave_bot/internal/logger"
	"ruwave_bot/pkg"
)

// priceTable is an immutable snapshot of keyword -> price
type priceTable struct {
	entries map[string]pkg.PriceEntry
	// keywords in match order: longest first, then lexicographic
	keywords []string
}

// PriceService answers price queries from a swappable price snapshot
type PriceService struct {
	table atomic.Pointer[priceTable]
}

// NewPriceService creates a service preloaded with entries
func NewPriceService(entries []pkg.PriceEntry) *PriceService {
	ps := &PriceService{}
	ps.Replace(entries)
	return ps
}

// Replace publishes a new price snapshot built from entries.
// Keywords are lowercased and trimmed; for duplicate keywords the last entry wins.
func (ps *PriceService) Replace(entries []pkg.PriceEntry) {
	table := &priceTable{entries: make(map[string]pkg.PriceEntry, len(entries))}

	for _, entry := range entries {
		keyword := strings.ToLower(strings.TrimSpace(entry.Keyword))
		if keyword == "" {
			continue
		}
		table.entries[keyword] = pkg.PriceEntry{Keyword: keyword, PriceText: entry.PriceText}
	}

	table.keywords = make([]string, 0, len(table.entries))
	for keyword := range table.entries {
		table.keywords = append(table.keywords, keyword)
	}
	sort.Slice(table.keywords, func(i, j int) bool {
		a, b := table.keywords[i], table.keywords[j]
		if len([]rune(a)) != len([]rune(b)) {
			return len([]rune(a)) > len([]rune(b))
		}
		return a < b
	})

	ps.table.Store(table)
	logger.Debug().Int("keywords", len(table.keywords)).Msg("💰 Price table published")
}

// Match returns the price entry whose keyword occurs in the message.
// When several keywords occur the longest one wins.
func (ps *PriceService) Match(ctx context.Context, message string) (pkg.PriceEntry, bool) {
	table := ps.table.Load()
	if table == nil {
		return pkg.PriceEntry{}, false
	}

	messageLower := strings.ToLower(message)
	for _, keyword := range table.keywords {
		if strings.Contains(messageLower, keyword) {
			return table.entries[keyword], true
		}
	}
	return pkg.PriceEntry{}, false
}

// Lookup returns the entry for an exact keyword (case-insensitive)
func (ps *PriceService) Lookup(keyword string) (pkg.PriceEntry, bool) {
	table := ps.table.Load()
	if table == nil {
		return pkg.PriceEntry{}, false
	}
	entry, ok := table.entries[strings.ToLower(strings.TrimSpace(keyword))]
	return entry, ok
}

// Keywords lists the configured keywords in match order
func (ps *PriceService) Keywords() []string {
	table := ps.table.Load()
	if table == nil {
		return nil
	}
	out := make([]string, len(table.keywords))
	copy(out, table.keywords)
	return out
}
