// Package entity maps (name, type) pairs to canonical entity ids and
// looks up existing entities by name, alias, or fuzzy match.
package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"scout/internal/logging"
)

// ErrInvalidInput is returned when a name or type is missing.
var ErrInvalidInput = errors.New("entity: name and type are required")

// Ref is a lightweight reference to an existing entity.
type Ref struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Score float64 `json:"score,omitempty"`
}

// Resolver resolves and searches canonical entities.
type Resolver struct {
	db  *sql.DB
	log *zap.Logger

	trgmOnce sync.Once
	trgm     bool
}

// NewResolver builds a Resolver over the shared database handle.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db, log: logging.Named("entity")}
}

// Slug lowercases the name and collapses every non-alphanumeric run to a
// single underscore.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true // suppress leading underscore
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// TypePrefix returns the id prefix for an entity type.
func TypePrefix(entityType string) string {
	switch entityType {
	case "company":
		return "cmp"
	case "person":
		return "per"
	}
	if len(entityType) > 3 {
		return entityType[:3]
	}
	return entityType
}

// CanonicalID computes the deterministic id for a (type, name) pair.
func CanonicalID(name, entityType string) string {
	return TypePrefix(entityType) + "_" + Slug(name)
}

// NormalizeType trims and lowercases an entity type.
func NormalizeType(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}

// Resolve returns the canonical id for (name, type), creating the entity
// when neither the id nor a case-insensitive name match exists.
func (r *Resolver) Resolve(ctx context.Context, name, entityType string) (string, error) {
	name = strings.TrimSpace(name)
	entityType = NormalizeType(entityType)
	if name == "" || entityType == "" {
		return "", ErrInvalidInput
	}

	id := CanonicalID(name, entityType)

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("entity: lookup %s: %w", id, err)
	}
	if exists {
		return id, nil
	}

	var existingID string
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE type = $1 AND lower(canonical_name) = lower($2)`,
		entityType, name).Scan(&existingID)
	switch {
	case err == nil:
		return existingID, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("entity: name lookup %q: %w", name, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, canonical_name, aliases, external_ids)
		 VALUES ($1, $2, $3, '[]', '{}')
		 ON CONFLICT (id) DO NOTHING`,
		id, entityType, name)
	if err != nil {
		return "", fmt.Errorf("entity: insert %s: %w", id, err)
	}

	r.log.Debug("entity created", zap.String("id", id), zap.String("type", entityType))
	return id, nil
}

// TryResolveExisting finds an entity by canonical name or alias without
// creating one. Returns (nil, nil) when nothing matches.
func (r *Resolver) TryResolveExisting(ctx context.Context, name string) (*Ref, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, canonical_name, type FROM entities
		 WHERE lower(canonical_name) = lower($1)
		    OR EXISTS (
		        SELECT 1 FROM jsonb_array_elements_text(aliases) AS alias
		        WHERE lower(alias) = lower($1))
		 LIMIT 1`, name)

	var ref Ref
	err := row.Scan(&ref.ID, &ref.Name, &ref.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entity: resolve existing %q: %w", name, err)
	}
	return &ref, nil
}

// SearchByName returns up to limit candidate entities ranked by trigram
// similarity when pg_trgm is available, otherwise by substring match with
// shorter names first.
func (r *Resolver) SearchByName(ctx context.Context, query string, limit int) ([]Ref, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = 5
	}

	if r.hasTrigram(ctx) {
		refs, err := r.searchTrigram(ctx, query, limit)
		if err == nil {
			return refs, nil
		}
		r.log.Warn("trigram search failed, falling back to substring", zap.Error(err))
	}
	return r.searchSubstring(ctx, query, limit)
}

func (r *Resolver) hasTrigram(ctx context.Context) bool {
	r.trgmOnce.Do(func() {
		var s float64
		r.trgm = r.db.QueryRowContext(ctx, `SELECT similarity('a', 'a')`).Scan(&s) == nil
	})
	return r.trgm
}

func (r *Resolver) searchTrigram(ctx context.Context, query string, limit int) ([]Ref, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, canonical_name, type, similarity(canonical_name, $1) AS score
		 FROM entities
		 WHERE similarity(canonical_name, $1) > 0.2
		 ORDER BY score DESC
		 LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRefs(rows, true)
}

func (r *Resolver) searchSubstring(ctx context.Context, query string, limit int) ([]Ref, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, canonical_name, type, 0 AS score
		 FROM entities
		 WHERE canonical_name ILIKE '%' || $1 || '%'
		 ORDER BY length(canonical_name) ASC
		 LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("entity: substring search %q: %w", query, err)
	}
	defer rows.Close()
	return scanRefs(rows, false)
}

func scanRefs(rows *sql.Rows, withScore bool) ([]Ref, error) {
	var refs []Ref
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Type, &ref.Score); err != nil {
			return nil, err
		}
		if !withScore {
			ref.Score = 0
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// AddAlias appends an alias to an entity's alias set if not present.
func (r *Resolver) AddAlias(ctx context.Context, id, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil
	}
	encoded, err := json.Marshal(alias)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE entities
		 SET aliases = aliases || $2::jsonb
		 WHERE id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM jsonb_array_elements_text(aliases) AS alias
		       WHERE lower(alias) = lower($3))`,
		id, string(encoded), alias)
	if err != nil {
		return fmt.Errorf("entity: add alias: %w", err)
	}
	return nil
}
