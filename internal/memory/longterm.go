package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scout/internal/logging"
	"scout/internal/types"
)

// LongTerm stores durable per-user bullet-point facts. Uniqueness on
// (username, text) makes repeated writes idempotent; a conflicting write
// refreshes created_at so recent reinforcement floats to the top.
type LongTerm struct {
	db  *sql.DB
	log *zap.Logger
}

// NewLongTerm builds the long-term memory store.
func NewLongTerm(db *sql.DB) *LongTerm {
	return &LongTerm{db: db, log: logging.Named("memory")}
}

// Add upserts a memory entry for the user.
func (m *LongTerm) Add(ctx context.Context, username, text string, tags []string) error {
	username = strings.TrimSpace(username)
	text = strings.TrimSpace(text)
	if username == "" || text == "" {
		return fmt.Errorf("memory: username and text are required")
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("memory: encode tags: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO user_memory (id, username, text, tags, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (username, text)
		 DO UPDATE SET created_at = now(), tags = EXCLUDED.tags`,
		uuid.NewString(), username, text, string(tagsJSON))
	if err != nil {
		return fmt.Errorf("memory: add: %w", err)
	}

	m.log.Debug("memory upserted", zap.String("username", username))
	return nil
}

// Get returns up to 200 most recent entries for the user.
func (m *LongTerm) Get(ctx context.Context, username string) ([]types.MemoryEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, username, text, tags, created_at
		 FROM user_memory
		 WHERE username = $1
		 ORDER BY created_at DESC
		 LIMIT 200`, username)
	if err != nil {
		return nil, fmt.Errorf("memory: get %s: %w", username, err)
	}
	defer rows.Close()

	var out []types.MemoryEntry
	for rows.Next() {
		var (
			entry    types.MemoryEntry
			tagsJSON string
		)
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Text, &tagsJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
			entry.Tags = nil
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
