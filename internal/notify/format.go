package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

// FormatStatus renders the current standings of an ongoing game, one
// player per line. Names sort alphabetically for a stable readout.
func FormatStatus(gameID string, table score.Table) string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Current victory points for **%s**:", gameID)
	for _, name := range names {
		fmt.Fprintf(&b, "\n**%s**: %d points", name, table[name])
	}
	return b.String()
}

// FormatFinal renders final standings, bolding the winner.
func FormatFinal(gameID string, standings []score.Standing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Game %s** has ended! Final scores:", gameID)
	for _, s := range standings {
		if s.Winner {
			fmt.Fprintf(&b, "\n**%s**: %d points", s.Name, s.Points)
		} else {
			fmt.Fprintf(&b, "\n%s: %d points", s.Name, s.Points)
		}
	}
	return b.String()
}

// FormatPartial reports a game that ended without retrievable scores
// (stall timeout, probe fault, or the end-of-game payload never
// appeared).
func FormatPartial(gameID string) string {
	return fmt.Sprintf("Game **%s** ended, but final scores could not be retrieved (timed out or error).", gameID)
}
