package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ruwave_bot/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheetCSV = "Название песни и исполнитель,Дата выхода,Пусто,Время выхода,Лайк (1/0),Всего лайков,Дизлайк (1/0),Всего дизлайков\r\n" +
	"Мэри Крэмбри - Скользкий путь,01.01.2025,,19:25,1,28,0,2\r\n" +
	"Song B,01.01.2025,,09:30,0,,0,\r\n" +
	"broken row\r\n" +
	"Song C,32.01.2025,,09:00,0,1,0,0\r\n" +
	"Song D,02/01/25,,9:05:00,0,-3,0,x\r\n" +
	"\r\n"

func TestParsePlaylistMapsHeadersAndDropsMalformedRows(t *testing.T) {
	records, stats, err := ParsePlaylist(sheetCSV, ",")
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 3, stats.Kept)
	assert.Equal(t, 2, stats.Dropped)

	require.Len(t, records, 3)
	assert.Equal(t, pkg.PlaylistRecord{
		Title:    "Мэри Крэмбри - Скользкий путь",
		AirDate:  pkg.Date{Year: 2025, Month: time.January, Day: 1},
		AirTime:  pkg.Clock(19*60 + 25),
		Likes:    28,
		Dislikes: 2,
	}, records[0])

	// absent counts default to zero
	assert.Equal(t, 0, records[1].Likes)
	assert.Equal(t, 0, records[1].Dislikes)

	// 2-digit year, seconds dropped, negative and garbage counts clamp to zero
	assert.Equal(t, pkg.Date{Year: 2025, Month: time.January, Day: 2}, records[2].AirDate)
	assert.Equal(t, pkg.Clock(9*60+5), records[2].AirTime)
	assert.Equal(t, 0, records[2].Likes)
	assert.Equal(t, 0, records[2].Dislikes)
}

func TestParsePlaylistEnglishHeadersAnyOrder(t *testing.T) {
	data := "Time;Dislikes;Likes;Date;Song\n10:00;1;5;2025-03-08;Track\n"
	records, _, err := ParsePlaylist(data, ";")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Track", records[0].Title)
	assert.Equal(t, 5, records[0].Likes)
	assert.Equal(t, 1, records[0].Dislikes)
	assert.Equal(t, pkg.Date{Year: 2025, Month: time.March, Day: 8}, records[0].AirDate)
}

func TestParsePlaylistRejectsMissingColumns(t *testing.T) {
	_, _, err := ParsePlaylist("Song,Likes\nA,1\n", ",")
	assert.Error(t, err)

	_, _, err = ParsePlaylist("\n\n", ",")
	assert.Error(t, err)
}

func TestParseSheetDateAndTime(t *testing.T) {
	cases := map[string]bool{
		"01.01.2025": true,
		"1-2-2025":   true,
		"1/2/25":     true,
		"2025-01-02": true,
		"29.02.2025": false,
		"01.01.205":  false,
		"01.01":      false,
		"":           false,
	}
	for in, want := range cases {
		_, ok := ParseSheetDate(in)
		assert.Equal(t, want, ok, in)
	}

	c, ok := ParseSheetTime("7:05")
	require.True(t, ok)
	assert.Equal(t, "07:05", c.String())

	_, ok = ParseSheetTime("7:5")
	assert.False(t, ok)
	_, ok = ParseSheetTime("24:00")
	assert.False(t, ok)
}

type memoryStore struct {
	saved *pkg.PlaylistSnapshot
	err   error
}

func (m *memoryStore) SaveSnapshot(ctx context.Context, snapshot *pkg.PlaylistSnapshot) error {
	m.saved = snapshot
	return m.err
}

func (m *memoryStore) LoadSnapshot(ctx context.Context) (*pkg.PlaylistSnapshot, error) {
	if m.saved == nil {
		return nil, errors.New("not found")
	}
	return m.saved, nil
}

func TestRefreshPublishesAndFailedRefreshKeepsSnapshot(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, sheetCSV)
	}))
	defer srv.Close()

	store := &memoryStore{}
	src := NewPlaylistSource(srv.URL, ",", WithHTTPClient(srv.Client()), WithSnapshotStore(store))
	assert.Equal(t, 0, src.Snapshot().Len())

	require.NoError(t, src.Refresh(context.Background()))
	first := src.Snapshot()
	assert.Equal(t, 3, first.Len())
	assert.Same(t, first, store.saved)

	fail.Store(true)
	err := src.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrExternalFetch))
	assert.Same(t, first, src.Snapshot())
}

func TestRefreshParseFailureKeepsSnapshot(t *testing.T) {
	var body atomic.Value
	body.Store(sheetCSV)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body.Load().(string))
	}))
	defer srv.Close()

	src := NewPlaylistSource(srv.URL, ",", WithHTTPClient(srv.Client()))
	require.NoError(t, src.Refresh(context.Background()))
	first := src.Snapshot()

	body.Store("<html>not a sheet</html>")
	err := src.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrExternalFetch))
	assert.Same(t, first, src.Snapshot())
}

func TestRestoreFromStore(t *testing.T) {
	saved := &pkg.PlaylistSnapshot{Records: fixture(), Source: "redis"}
	src := NewPlaylistSource("http://127.0.0.1:0/unused", ",", WithSnapshotStore(&memoryStore{saved: saved}))

	require.NoError(t, src.Restore(context.Background()))
	assert.Equal(t, 3, src.Snapshot().Len())

	bare := NewPlaylistSource("http://127.0.0.1:0/unused", ",")
	assert.Error(t, bare.Restore(context.Background()))
}
