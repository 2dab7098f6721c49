package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/registry"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

type stubWatchers struct {
	startErr  error
	started   []string
	channels  []string
	active    map[string]score.Table
	completed map[string]registry.Completion
}

func (s *stubWatchers) StartWatch(_ context.Context, id, channel string) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, id)
	s.channels = append(s.channels, channel)
	return nil
}

func (s *stubWatchers) IsActive(id string) bool {
	_, ok := s.active[id]
	return ok
}

func (s *stubWatchers) CurrentStatus(id string) (score.Table, bool) {
	t, ok := s.active[id]
	return t, ok && t != nil
}

func (s *stubWatchers) LookupCompleted(_ context.Context, id string) (registry.Completion, bool) {
	c, ok := s.completed[id]
	return c, ok
}

func serve(t *testing.T, stub *stubWatchers, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(stub, "general", zap.NewNop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestWatchStarts(t *testing.T) {
	stub := &stubWatchers{}
	rec := serve(t, stub, http.MethodPost, "/watch/room42?channel=table-7")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"room42"}, stub.started)
	assert.Equal(t, []string{"table-7"}, stub.channels)
}

func TestWatchStripsHashAndDefaultsChannel(t *testing.T) {
	stub := &stubWatchers{}
	rec := serve(t, stub, http.MethodPost, "/watch/%23room42")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"room42"}, stub.started)
	assert.Equal(t, []string{"general"}, stub.channels)
}

func TestWatchConflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"already active", registry.ErrAlreadyActive},
		{"already completed", registry.ErrAlreadyCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &stubWatchers{startErr: tt.err}, http.MethodPost, "/watch/room42")
			assert.Equal(t, http.StatusConflict, rec.Code)
		})
	}
}

func TestStatusActive(t *testing.T) {
	stub := &stubWatchers{
		active: map[string]score.Table{"room42": {"Alice": 7}},
	}
	rec := serve(t, stub, http.MethodGet, "/status/room42")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, score.Table{"Alice": 7}, resp.Scores)
	assert.Contains(t, resp.Message, "**Alice**: 7 points")
}

func TestStatusCompleted(t *testing.T) {
	stub := &stubWatchers{
		completed: map[string]registry.Completion{
			"room42": {
				GameID:    "room42",
				Standings: []score.Standing{{Name: "Alice", Points: 10, Winner: true}},
			},
		},
	}
	rec := serve(t, stub, http.MethodGet, "/status/room42")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.Len(t, resp.Standings, 1)
	assert.True(t, resp.Standings[0].Winner)
	assert.Contains(t, resp.Message, "has ended")
}

func TestStatusPartialCompleted(t *testing.T) {
	stub := &stubWatchers{
		completed: map[string]registry.Completion{
			"room42": {GameID: "room42", Partial: true},
		},
	}
	rec := serve(t, stub, http.MethodGet, "/status/room42")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Partial)
	assert.Contains(t, resp.Message, "could not be retrieved")
}

func TestStatusUnknown(t *testing.T) {
	rec := serve(t, &stubWatchers{}, http.MethodGet, "/status/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
