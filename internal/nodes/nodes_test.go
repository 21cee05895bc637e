package nodes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/services"
	"ruwave_bot/internal/timewindow"
	"ruwave_bot/pkg"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeholder = "⚠️ Ошибка получения ответа от модели."

type fakeChatModel struct {
	mu    sync.Mutex
	calls int
	last  []*schema.Message
	reply *schema.Message
	err   error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatModel) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSnapshot struct {
	snapshot *pkg.PlaylistSnapshot
}

func (s staticSnapshot) Snapshot() *pkg.PlaylistSnapshot {
	return s.snapshot
}

func day(d int) pkg.Date {
	return pkg.Date{Year: 2025, Month: time.January, Day: d}
}

func fixtureSnapshot() *pkg.PlaylistSnapshot {
	return &pkg.PlaylistSnapshot{Records: []pkg.PlaylistRecord{
		{Title: "A", AirDate: day(1), AirTime: 9 * 60, Likes: 3},
		{Title: "B", AirDate: day(1), AirTime: 9*60 + 30, Likes: 28, Dislikes: 2},
		{Title: "C", AirDate: day(2), AirTime: 9 * 60},
	}}
}

var receivedAt = time.Date(2025, time.January, 2, 12, 0, 0, 0, time.UTC)

func newTestGraph(t *testing.T, chat *fakeChatModel) core.GraphProcessor {
	t.Helper()

	prices := services.NewPriceService([]pkg.PriceEntry{
		{Keyword: "реклам", PriceText: "от €4 до €9.40 за 30 выходов"},
		{Keyword: "sponsor", PriceText: "from €400 per month"},
	})
	phrases := []string{"какая песня", "что играло", "what song"}

	graph, err := NewIntentGraph(
		NewIntentNode(prices, phrases),
		NewPriceNode(prices),
		NewPlaylistNode(staticSnapshot{fixtureSnapshot()}, timewindow.NewRuleResolver(time.UTC), services.NewPlaylistLookup(services.ClosestDataset), 10),
		NewFallbackNode(chat, "persona", placeholder),
	)
	require.NoError(t, err)
	return graph
}

func run(t *testing.T, graph core.GraphProcessor, message string) (*core.ProcessorOutput, error) {
	t.Helper()
	return graph.Execute(context.Background(), core.ProcessorInput{UserMessage: message, ReceivedAt: receivedAt})
}

func TestPriceBranchNeverCallsModel(t *testing.T) {
	chat := &fakeChatModel{reply: schema.AssistantMessage("llm", nil)}
	graph := newTestGraph(t, chat)

	// a price keyword wins even when a playlist phrase is present
	for _, msg := range []string{"Сколько стоит РЕКЛАМА?", "какая песня в рекламе", "Sponsorship options?"} {
		out, err := run(t, graph, msg)
		require.NoError(t, err, msg)
		assert.Equal(t, pkg.IntentPrice, out.Intent, msg)
		assert.Equal(t, []string{"intent", "price"}, out.ExecutionPath)
	}

	out, err := run(t, graph, "реклама")
	require.NoError(t, err)
	assert.Equal(t, "💰 от €4 до €9.40 за 30 выходов", out.Reply)
	assert.Zero(t, chat.Calls())
}

func TestPlaylistBranchUsesSnapshot(t *testing.T) {
	chat := &fakeChatModel{}
	graph := newTestGraph(t, chat)

	out, err := run(t, graph, "Какая песня была 01.01.2025 с 9:00 до 9:30?")
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentPlaylist, out.Intent)
	assert.Equal(t,
		"🎵 В эфире RuWave 94FM 01.01.2025 с 09:00 до 09:30:\n09:00 — A (👍 3 / 👎 0)\n09:30 — B (👍 28 / 👎 2)",
		out.Reply)

	out, err = run(t, graph, "что играло 01.01.2025 в 10:00")
	require.NoError(t, err)
	assert.Equal(t, "🎵 Точной записи на 01.01.2025 в 10:00 нет. Ближайшая по времени:\n09:30 — B (👍 28 / 👎 2)", out.Reply)

	out, err = run(t, graph, "what song played at 25:00")
	require.NoError(t, err)
	assert.Equal(t, noTimeWindowReply, out.Reply)

	assert.Zero(t, chat.Calls())
}

func TestPlaylistReplyIsIdempotent(t *testing.T) {
	graph := newTestGraph(t, &fakeChatModel{})

	first, err := run(t, graph, "что играло вчера утром")
	require.NoError(t, err)
	second, err := run(t, graph, "что играло вчера утром")
	require.NoError(t, err)

	assert.Equal(t, first.Reply, second.Reply)
	assert.Contains(t, first.Reply, "09:00 — A")
}

func TestFallbackCalledExactlyOnce(t *testing.T) {
	chat := &fakeChatModel{reply: schema.AssistantMessage("Привет! Это RuWave 94FM.", nil)}
	graph := newTestGraph(t, chat)

	out, err := run(t, graph, "  Привет  ")
	require.NoError(t, err)
	assert.Equal(t, pkg.IntentFallback, out.Intent)
	assert.Equal(t, "Привет! Это RuWave 94FM.", out.Reply)
	assert.Equal(t, 1, chat.Calls())

	require.Len(t, chat.last, 2)
	assert.Equal(t, schema.System, chat.last[0].Role)
	assert.Equal(t, "persona", chat.last[0].Content)
	assert.Equal(t, schema.User, chat.last[1].Role)
	assert.Equal(t, "Привет", chat.last[1].Content)
}

func TestFallbackEmptyReplyUsesPlaceholder(t *testing.T) {
	chat := &fakeChatModel{reply: schema.AssistantMessage("   ", nil)}
	graph := newTestGraph(t, chat)

	out, err := run(t, graph, "расскажи о станции")
	require.NoError(t, err)
	assert.Equal(t, placeholder, out.Reply)
}

func TestFallbackFailureIsExternalFetch(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("401 unauthorized")}
	graph := newTestGraph(t, chat)

	_, err := run(t, graph, "расскажи о станции")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrExternalFetch))
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.Equal(t, 1, chat.Calls())
}

func TestBlankMessageIsEmptyInput(t *testing.T) {
	chat := &fakeChatModel{}
	graph := newTestGraph(t, chat)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := run(t, graph, msg)
		assert.True(t, errors.Is(err, pkg.ErrEmptyInput))
	}
	assert.Zero(t, chat.Calls())
}

func TestFallbackRateLimitHonoursContext(t *testing.T) {
	chat := &fakeChatModel{reply: schema.AssistantMessage("ok", nil)}
	node := NewFallbackNode(chat, "persona", placeholder, WithRateLimit(0.001, 1))

	reply, err := node.Respond(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = node.Respond(ctx, "second")
	assert.True(t, errors.Is(err, pkg.ErrExternalFetch))
	assert.Equal(t, 1, chat.Calls())
}
