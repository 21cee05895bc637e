package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/metrics"
	"ruwave_bot/pkg"
)

// SnapshotStore persists the last good playlist snapshot outside the process
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *pkg.PlaylistSnapshot) error
	LoadSnapshot(ctx context.Context) (*pkg.PlaylistSnapshot, error)
}

// column kinds, in the order headers are claimed; dislikes before likes
// because "dislikes" contains "likes"
type columnKind int

const (
	colDislikes columnKind = iota
	colLikes
	colDate
	colTime
	colTitle
	numColumns
)

var headerFragments = [numColumns][]string{
	colDislikes: {"всего дизлайк", "total dislike", "dislikes"},
	colLikes:    {"всего лайк", "total like", "likes"},
	colDate:     {"дата", "date"},
	colTime:     {"время", "time"},
	colTitle:    {"назван", "песн", "song", "title"},
}

// ParseStats describes how many rows a parse kept and dropped
type ParseStats struct {
	Rows    int
	Kept    int
	Dropped int
}

// ParsePlaylist converts delimited text into playlist records.
// Rows are split on line breaks and cells on delimiter with no quote handling.
// The first non-empty line is the header. Rows without a parseable date, time
// or title are dropped.
func ParsePlaylist(data, delimiter string) ([]pkg.PlaylistRecord, ParseStats, error) {
	var stats ParseStats
	data = strings.TrimPrefix(data, "\ufeff")
	lines := strings.Split(data, "\n")

	headerAt := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, stats, fmt.Errorf("playlist is empty")
	}

	columns, err := mapColumns(splitRow(lines[headerAt], delimiter))
	if err != nil {
		return nil, stats, err
	}

	required := max(columns[colDate], columns[colTime], columns[colTitle])
	records := make([]pkg.PlaylistRecord, 0, len(lines)-headerAt-1)

	for _, line := range lines[headerAt+1:] {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "" {
			continue
		}
		stats.Rows++

		cells := splitRow(line, delimiter)
		if len(cells) <= required {
			stats.Dropped++
			continue
		}

		date, ok := ParseSheetDate(cells[columns[colDate]])
		if !ok {
			stats.Dropped++
			continue
		}
		clock, ok := ParseSheetTime(cells[columns[colTime]])
		if !ok {
			stats.Dropped++
			continue
		}
		title := cells[columns[colTitle]]
		if title == "" {
			stats.Dropped++
			continue
		}

		records = append(records, pkg.PlaylistRecord{
			Title:    title,
			AirDate:  date,
			AirTime:  clock,
			Likes:    countCell(cells, columns[colLikes]),
			Dislikes: countCell(cells, columns[colDislikes]),
		})
	}

	stats.Kept = len(records)
	return records, stats, nil
}

func splitRow(line, delimiter string) []string {
	cells := strings.Split(strings.TrimSuffix(line, "\r"), delimiter)
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// mapColumns assigns each column kind to the first header containing one of its
// fragments; a header claims at most one kind. Likes and dislikes are optional (-1).
func mapColumns(headers []string) ([numColumns]int, error) {
	var columns [numColumns]int
	for i := range columns {
		columns[i] = -1
	}
	claimed := make([]bool, len(headers))

	for kind := columnKind(0); kind < numColumns; kind++ {
		for i, header := range headers {
			if claimed[i] {
				continue
			}
			if containsAny(strings.ToLower(header), headerFragments[kind]) {
				columns[kind] = i
				claimed[i] = true
				break
			}
		}
	}

	var missing []string
	if columns[colDate] < 0 {
		missing = append(missing, "date")
	}
	if columns[colTime] < 0 {
		missing = append(missing, "time")
	}
	if columns[colTitle] < 0 {
		missing = append(missing, "song")
	}
	if len(missing) > 0 {
		return columns, fmt.Errorf("playlist header is missing columns %v: %q", missing, headers)
	}
	return columns, nil
}

func containsAny(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func countCell(cells []string, idx int) int {
	if idx < 0 || idx >= len(cells) {
		return 0
	}
	n, err := strconv.Atoi(cells[idx])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseSheetDate parses DD.MM.YYYY (also with / or -, and 2-digit years as 20YY)
// and ISO YYYY-MM-DD.
func ParseSheetDate(s string) (pkg.Date, bool) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '/' || r == '-' })
	if len(parts) != 3 {
		return pkg.Date{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return pkg.Date{}, false
		}
		nums[i] = n
	}

	if len(parts[0]) == 4 {
		return pkg.NewDate(nums[0], time.Month(nums[1]), nums[2])
	}

	year := nums[2]
	switch len(parts[2]) {
	case 2:
		year += 2000
	case 4:
	default:
		return pkg.Date{}, false
	}
	return pkg.NewDate(year, time.Month(nums[1]), nums[0])
}

// ParseSheetTime parses H:MM or H:MM:SS, dropping seconds
func ParseSheetTime(s string) (pkg.Clock, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, false
	}
	return pkg.NewClock(hour, minute)
}

// PlaylistSource keeps the playlist snapshot fresh from a published spreadsheet export
type PlaylistSource struct {
	url       string
	delimiter string
	client    *http.Client
	store     SnapshotStore
	metrics   *metrics.Metrics

	snapshot atomic.Pointer[pkg.PlaylistSnapshot]
	now      func() time.Time
}

// PlaylistSourceOption customises a PlaylistSource
type PlaylistSourceOption func(*PlaylistSource)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) PlaylistSourceOption {
	return func(s *PlaylistSource) { s.client = client }
}

// WithSnapshotStore persists every published snapshot
func WithSnapshotStore(store SnapshotStore) PlaylistSourceOption {
	return func(s *PlaylistSource) { s.store = store }
}

// WithMetrics records refresh outcomes
func WithMetrics(m *metrics.Metrics) PlaylistSourceOption {
	return func(s *PlaylistSource) { s.metrics = m }
}

// NewPlaylistSource creates a source for url; the snapshot starts empty
func NewPlaylistSource(url, delimiter string, opts ...PlaylistSourceOption) *PlaylistSource {
	s := &PlaylistSource{
		url:       url,
		delimiter: delimiter,
		client:    http.DefaultClient,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(&pkg.PlaylistSnapshot{Source: url})
	return s
}

// Snapshot returns the currently published snapshot; never nil
func (s *PlaylistSource) Snapshot() *pkg.PlaylistSnapshot {
	return s.snapshot.Load()
}

// Refresh fetches and parses the spreadsheet and publishes it only on full success.
// On any failure the previous snapshot stays in place.
func (s *PlaylistSource) Refresh(ctx context.Context) error {
	start := s.now()

	body, err := s.fetch(ctx)
	s.metrics.ObserveExternal("spreadsheet", err)
	if err != nil {
		s.metrics.ObserveRefresh(err, 0, start)
		logger.Error().Err(err).Str("url", s.url).
			Int("kept_records", s.Snapshot().Len()).
			Msg("❌ Playlist refresh failed, keeping previous snapshot")
		return err
	}

	records, stats, err := ParsePlaylist(body, s.delimiter)
	if err != nil {
		s.metrics.ObserveRefresh(err, 0, start)
		logger.Error().Err(err).Str("url", s.url).
			Int("kept_records", s.Snapshot().Len()).
			Msg("❌ Playlist parse failed, keeping previous snapshot")
		return fmt.Errorf("%w: parse playlist: %v", pkg.ErrExternalFetch, err)
	}

	snapshot := &pkg.PlaylistSnapshot{
		Records:   records,
		FetchedAt: start,
		Source:    s.url,
	}
	s.snapshot.Store(snapshot)
	s.metrics.ObserveRefresh(nil, len(records), start)

	logger.Info().
		Int("records", stats.Kept).
		Int("dropped", stats.Dropped).
		Dur("elapsed", s.now().Sub(start)).
		Msg("🎵 Playlist snapshot published")

	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Failed to persist playlist snapshot")
		}
	}
	return nil
}

// Restore publishes the persisted snapshot, used when the first fetch fails
func (s *PlaylistSource) Restore(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	snapshot, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore playlist snapshot: %w", err)
	}
	s.snapshot.Store(snapshot)
	logger.Info().
		Int("records", snapshot.Len()).
		Time("fetched_at", snapshot.FetchedAt).
		Msg("💾 Restored playlist snapshot from store")
	return nil
}

func (s *PlaylistSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build playlist request: %v", pkg.ErrExternalFetch, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch playlist: %v", pkg.ErrExternalFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: playlist returned status %d", pkg.ErrExternalFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read playlist body: %v", pkg.ErrExternalFetch, err)
	}
	return string(body), nil
}
