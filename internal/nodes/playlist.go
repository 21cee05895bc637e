package nodes

import (
	"context"
	"errors"
	"time"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/services"
	"ruwave_bot/internal/timewindow"
	"ruwave_bot/pkg"
)

// SnapshotProvider exposes the currently published playlist
type SnapshotProvider interface {
	Snapshot() *pkg.PlaylistSnapshot
}

// PlaylistNode answers "what was playing" questions from the playlist snapshot
type PlaylistNode struct {
	source     SnapshotProvider
	resolver   timewindow.Resolver
	lookup     *services.PlaylistLookup
	maxResults int
}

// NewPlaylistNode creates the playlist branch
func NewPlaylistNode(source SnapshotProvider, resolver timewindow.Resolver, lookup *services.PlaylistLookup, maxResults int) *PlaylistNode {
	return &PlaylistNode{
		source:     source,
		resolver:   resolver,
		lookup:     lookup,
		maxResults: maxResults,
	}
}

// Execute resolves the time window and searches the snapshot.
// An unresolvable phrase and an empty result are both ordinary replies.
func (p *PlaylistNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	now := input.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	res, err := p.resolver.Resolve(ctx, input.UserMessage, now)
	if errors.Is(err, pkg.ErrNoTimeWindowFound) {
		logger.Debug().Err(err).Msg("🕐 No time window in playlist question")
		return core.NodeOutput{
			Data:     map[string]any{core.DataReply: noTimeWindowReply},
			Complete: true,
		}, nil
	}
	if err != nil {
		return core.NodeOutput{}, err
	}

	snapshot := p.source.Snapshot()
	var records []pkg.PlaylistRecord
	if snapshot != nil {
		records = snapshot.Records
	}
	result := p.lookup.Find(records, res.Window)

	logger.Debug().
		Str("window", res.Window.String()).
		Str("date_rule", string(res.DateRule)).
		Str("time_rule", string(res.TimeRule)).
		Int("matches", len(result.Records)).
		Bool("closest", result.Closest).
		Msg("🎵 Playlist lookup")

	return core.NodeOutput{
		Data: map[string]any{
			core.DataReply: FormatLookup(result, p.maxResults),
			"window":       res.Window,
			"matches":      len(result.Records),
			"closest":      result.Closest,
		},
		Complete: true,
	}, nil
}

// GetName returns the node name
func (p *PlaylistNode) GetName() string {
	return string(core.NodeTypePlaylist)
}

// GetType returns the node type
func (p *PlaylistNode) GetType() core.NodeType {
	return core.NodeTypePlaylist
}
