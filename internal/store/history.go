// Package store persists completed-game records in SQLite so results
// survive restarts and outlive the bounded in-memory window. The store
// is optional; the registry degrades to memory-only history without it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/elektro-code/CatanTournamentBot/internal/registry"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
)

// History is the SQLite-backed completion archive.
type History struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Open initializes the database at path, creating the directory and
// schema as needed.
func Open(path string, log *zap.Logger) (*History, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	h := &History{db: db, log: log}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("history store ready", zap.String("path", path))
	return h, nil
}

func (h *History) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS completions (
			game_id    TEXT PRIMARY KEY,
			record_id  TEXT NOT NULL,
			standings  TEXT NOT NULL,
			channel    TEXT NOT NULL DEFAULT '',
			partial    INTEGER NOT NULL DEFAULT 0,
			reason     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_completions_created
			ON completions(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Save upserts a completion record. Re-archiving the same game replaces
// the previous row.
func (h *History) Save(ctx context.Context, c registry.Completion) error {
	standings, err := json.Marshal(c.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO completions (game_id, record_id, standings, channel, partial, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			record_id = excluded.record_id,
			standings = excluded.standings,
			channel   = excluded.channel,
			partial   = excluded.partial,
			reason    = excluded.reason,
			created_at = excluded.created_at
	`, c.GameID, c.ID, string(standings), c.Channel, boolToInt(c.Partial), c.Reason, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save completion %s: %w", c.GameID, err)
	}
	return nil
}

// Get looks up a completion by game id.
func (h *History) Get(ctx context.Context, gameID string) (registry.Completion, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	row := h.db.QueryRowContext(ctx, `
		SELECT record_id, standings, channel, partial, reason, created_at
		FROM completions WHERE game_id = ?
	`, gameID)

	var (
		c         registry.Completion
		standings string
		partial   int
		createdAt time.Time
	)
	c.GameID = gameID
	err := row.Scan(&c.ID, &standings, &c.Channel, &partial, &c.Reason, &createdAt)
	if err == sql.ErrNoRows {
		return registry.Completion{}, false, nil
	}
	if err != nil {
		return registry.Completion{}, false, fmt.Errorf("load completion %s: %w", gameID, err)
	}
	c.Partial = partial != 0
	c.CreatedAt = createdAt

	if standings != "" {
		var s []score.Standing
		if err := json.Unmarshal([]byte(standings), &s); err != nil {
			h.log.Warn("corrupt standings row", zap.String("game", gameID), zap.Error(err))
		} else {
			c.Standings = s
		}
	}
	return c, true, nil
}

// Recent returns up to limit completions, most recent first.
func (h *History) Recent(ctx context.Context, limit int) ([]registry.Completion, error) {
	if limit <= 0 {
		limit = 100
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.QueryContext(ctx, `
		SELECT game_id, record_id, standings, channel, partial, reason, created_at
		FROM completions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []registry.Completion
	for rows.Next() {
		var (
			c         registry.Completion
			standings string
			partial   int
		)
		if err := rows.Scan(&c.GameID, &c.ID, &standings, &c.Channel, &partial, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Partial = partial != 0
		_ = json.Unmarshal([]byte(standings), &c.Standings)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
