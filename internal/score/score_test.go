package score

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func rawState(players ...map[string]any) map[string]any {
	entries := make([]any, len(players))
	for i, p := range players {
		entries[i] = any(p)
	}
	return map[string]any{"players": entries}
}

func player(color int, name string, vps map[string]any) map[string]any {
	return map[string]any{
		"userState": map[string]any{"username": name},
		"state": map[string]any{
			"color":              float64(color),
			"victoryPointsState": vps,
		},
	}
}

func TestPoints(t *testing.T) {
	tests := []struct {
		name      string
		breakdown map[string]any
		want      int
	}{
		{"empty", map[string]any{}, 0},
		{"nil", nil, 0},
		{"single category", map[string]any{"0": float64(3)}, 3},
		{"doubled categories", map[string]any{"1": float64(2), "3": float64(1), "4": float64(1)}, 8},
		{"all categories", map[string]any{"0": float64(1), "1": float64(1), "2": float64(1), "3": float64(1), "4": float64(1)}, 8},
		{"unknown keys ignored", map[string]any{"9": float64(5), "0": float64(2)}, 2},
		{"non numeric counts ignored", map[string]any{"0": "bad", "1": float64(1)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Points(tt.breakdown))
		})
	}
}

func TestFromRawState(t *testing.T) {
	state := rawState(
		player(0, "Alice", map[string]any{"0": float64(2), "1": float64(1)}),
	)

	got := FromRawState(state)
	want := Table{"Alice": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("score mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRawStateIdempotent(t *testing.T) {
	state := rawState(
		player(0, "Alice", map[string]any{"0": float64(2), "1": float64(1)}),
		player(1, "Bob", map[string]any{"2": float64(4)}),
	)

	first := FromRawState(state)
	second := FromRawState(state)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("extractor not idempotent (-first +second):\n%s", diff)
	}
}

func TestFromRawStateMalformed(t *testing.T) {
	tests := []struct {
		name  string
		state map[string]any
		want  Table
	}{
		{"nil state", nil, Table{}},
		{"no players", map[string]any{}, Table{}},
		{"players wrong type", map[string]any{"players": "oops"}, Table{}},
		{
			"missing username falls back to color label",
			rawState(map[string]any{
				"state": map[string]any{
					"color":              float64(2),
					"victoryPointsState": map[string]any{"0": float64(1)},
				},
			}),
			Table{"Color2": 1},
		},
		{
			"missing breakdown scores zero",
			rawState(map[string]any{
				"userState": map[string]any{"username": "Carol"},
				"state":     map[string]any{"color": float64(1)},
			}),
			Table{"Carol": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromRawState(tt.state)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlayerNames(t *testing.T) {
	state := rawState(
		player(0, "Alice", nil),
		player(3, "Dave", nil),
	)

	got := PlayerNames(state)
	want := map[int]string{0: "Alice", 3: "Dave"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestFromEndGameState(t *testing.T) {
	end := map[string]any{
		"players": map[string]any{
			"0": map[string]any{
				"victoryPoints": map[string]any{"0": float64(3), "3": float64(1)},
				"winningPlayer": true,
			},
		},
	}
	names := map[int]string{0: "Bob"}

	got := FromEndGameState(end, names)
	want := []Standing{{Name: "Bob", Points: 5, Winner: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("standings mismatch (-want +got):\n%s", diff)
	}
}

func TestFromEndGameStateOrderingAndFallback(t *testing.T) {
	end := map[string]any{
		"players": map[string]any{
			"2": map[string]any{
				"victoryPoints": map[string]any{"0": float64(4)},
			},
			"0": map[string]any{
				"victoryPoints": map[string]any{"0": float64(10)},
				"winningPlayer": true,
			},
			"junk": map[string]any{},
		},
	}

	got := FromEndGameState(end, map[int]string{0: "Alice"})
	want := []Standing{
		{Name: "Alice", Points: 10, Winner: true},
		{Name: "Color2", Points: 4, Winner: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("standings mismatch (-want +got):\n%s", diff)
	}
}

func TestFromEndGameStateMalformed(t *testing.T) {
	assert.Empty(t, FromEndGameState(nil, nil))
	assert.Empty(t, FromEndGameState(map[string]any{"players": "oops"}, nil))
}
