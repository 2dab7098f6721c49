// Package score converts raw game state read from the Colonist page into
// per-player victory point totals.
//
// The input is whatever the remote runtime handed back through expression
// evaluation: a JSON-decoded map whose shape is owned by the vendor. All
// field access is defensive; a missing or malformed field contributes a
// neutral default (zero points, synthesized name) instead of an error.
package score

import (
	"fmt"
	"sort"
	"strconv"
)

// multipliers maps victory point category keys to their point value.
// Observed from the live site: categories 0-4 score 1,2,1,2,2. The keys
// are strings because the breakdown arrives as a JSON object.
var multipliers = map[string]int{
	"0": 1,
	"1": 2,
	"2": 1,
	"3": 2,
	"4": 2,
}

// Table maps display name to total points. Derived; never mutated after
// construction.
type Table map[string]int

// Standing is one row of final results.
type Standing struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Winner bool   `json:"winner"`
}

// FallbackName synthesizes a display name for an unknown color code.
func FallbackName(color int) string {
	return fmt.Sprintf("Color%d", color)
}

// Points sums a raw victory point breakdown against the multiplier table.
// Categories absent from the breakdown count as zero.
func Points(breakdown map[string]any) int {
	pts := 0
	for key, mult := range multipliers {
		pts += asInt(breakdown[key]) * mult
	}
	return pts
}

// FromRawState computes current totals from a live game state. The state
// carries a player list; each entry holds the username and the running
// victory point breakdown.
//
// Shape: {players: [{userState: {username}, state: {victoryPointsState}}]}
func FromRawState(state map[string]any) Table {
	out := Table{}
	for _, entry := range asSlice(state["players"]) {
		player := asMap(entry)
		name := asString(asMap(player["userState"])["username"])
		inner := asMap(player["state"])
		if name == "" {
			name = FallbackName(asInt(inner["color"]))
		}
		out[name] = Points(asMap(inner["victoryPointsState"]))
	}
	return out
}

// PlayerNames captures the color code to username mapping from a live
// game state. Taken once at watch start; end-of-game data identifies
// players only by color.
func PlayerNames(state map[string]any) map[int]string {
	names := map[int]string{}
	for _, entry := range asSlice(state["players"]) {
		player := asMap(entry)
		name := asString(asMap(player["userState"])["username"])
		if name == "" {
			continue
		}
		names[asInt(asMap(player["state"])["color"])] = name
	}
	return names
}

// FromEndGameState computes final standings from the end-of-game payload,
// which is keyed by color code and carries the winner flag. Names resolve
// through the mapping captured at watch start; unknown colors get a
// synthesized label. Output is ordered by color code for determinism.
//
// Shape: {players: {"<color>": {victoryPoints, winningPlayer}}}
//
// This applies the same multiplier table as FromRawState to a differently
// shaped input; the two are kept as separate functions on purpose.
func FromEndGameState(end map[string]any, names map[int]string) []Standing {
	players := asMap(end["players"])

	colors := make([]int, 0, len(players))
	byColor := make(map[int]map[string]any, len(players))
	for key, entry := range players {
		color, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		colors = append(colors, color)
		byColor[color] = asMap(entry)
	}
	sort.Ints(colors)

	standings := make([]Standing, 0, len(colors))
	for _, color := range colors {
		info := byColor[color]
		name, ok := names[color]
		if !ok {
			name = FallbackName(color)
		}
		standings = append(standings, Standing{
			Name:   name,
			Points: Points(asMap(info["victoryPoints"])),
			Winner: asBool(info["winningPlayer"]),
		})
	}
	return standings
}

// JSON-decoded values arrive as any; numbers as float64.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
