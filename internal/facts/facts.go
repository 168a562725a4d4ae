// Package facts implements the bitemporal fact store. For every
// (entity_id, name) pair at most one row is current (valid_to IS NULL);
// writing a new fact closes the previous current row in the same
// transaction. History is never rewritten.
package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scout/internal/entity"
	"scout/internal/logging"
	"scout/internal/types"
)

// ErrEntityUnresolved is returned when an operation needs an entity that
// does not exist yet.
var ErrEntityUnresolved = errors.New("facts: entity not resolved")

// ErrNoSubject is returned when a variable lacks a resolved canonical id.
var ErrNoSubject = errors.New("facts: variable has no resolved subject")

// Store reads and writes facts.
type Store struct {
	db       *sql.DB
	resolver *entity.Resolver
	log      *zap.Logger
	now      func() time.Time
}

// NewStore builds a fact store. The clock is injectable for tests.
func NewStore(db *sql.DB, resolver *entity.Resolver) *Store {
	return &Store{
		db:       db,
		resolver: resolver,
		log:      logging.Named("facts"),
		now:      time.Now,
	}
}

// WithClock overrides the wall clock.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// StoreFact persists a variable as the new current fact for its subject,
// closing any previously current row at the observation time. The
// subject's canonical id is resolved (creating the entity) when missing.
func (s *Store) StoreFact(ctx context.Context, v types.MagicVariable, observedAt *time.Time) error {
	if v.Subject == nil || v.Subject.Name == "" {
		return ErrNoSubject
	}

	if v.Subject.CanonicalID == "" {
		id, err := s.resolver.Resolve(ctx, v.Subject.Name, v.Subject.Type)
		if err != nil {
			return fmt.Errorf("facts: resolve subject: %w", err)
		}
		v.Subject.CanonicalID = id
	}

	obs := s.now().UTC()
	if observedAt != nil {
		obs = observedAt.UTC()
	}

	valueJSON, err := json.Marshal(v.Value)
	if err != nil {
		return fmt.Errorf("facts: encode value: %w", err)
	}
	sourcesJSON, err := json.Marshal(normalizeSources(v.Sources))
	if err != nil {
		return fmt.Errorf("facts: encode sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("facts: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE facts SET valid_to = $1
		 WHERE entity_id = $2 AND name = $3 AND valid_to IS NULL`,
		obs, v.Subject.CanonicalID, v.Name)
	if err != nil {
		return fmt.Errorf("facts: close current row: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO facts
			(id, entity_id, name, value, dtype, confidence, sources, notes,
			 observed_at, valid_from, valid_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $9, NULL)`,
		uuid.NewString(), v.Subject.CanonicalID, v.Name, string(valueJSON),
		string(v.DType), v.Confidence, string(sourcesJSON), v.Notes, obs)
	if err != nil {
		return fmt.Errorf("facts: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("facts: commit: %w", err)
	}

	s.log.Debug("fact stored",
		zap.String("entity", v.Subject.CanonicalID),
		zap.String("name", v.Name))
	return nil
}

// GetFact returns the current fact for (entityID, name), or nil.
func (s *Store) GetFact(ctx context.Context, entityID, name string) (*types.Fact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_id, name, value, dtype, confidence, sources,
		        COALESCE(notes, ''), observed_at, valid_from, valid_to
		 FROM facts
		 WHERE entity_id = $1 AND name = $2 AND valid_to IS NULL`,
		entityID, name)

	fact, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("facts: get %s/%s: %w", entityID, name, err)
	}
	return fact, nil
}

// GetFactsForEntity returns every current fact for the entity, ordered by
// variable name.
func (s *Store) GetFactsForEntity(ctx context.Context, entityID string) ([]types.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, name, value, dtype, confidence, sources,
		        COALESCE(notes, ''), observed_at, valid_from, valid_to
		 FROM facts
		 WHERE entity_id = $1 AND valid_to IS NULL
		 ORDER BY name`, entityID)
	if err != nil {
		return nil, fmt.Errorf("facts: list %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fact)
	}
	return out, rows.Err()
}

// FindSimilarFactNames returns distinct current-row variable names for the
// entity containing the normalised base name, excluding the exact match.
// Used as a synonym lookup when a requested variable is absent.
func (s *Store) FindSimilarFactNames(ctx context.Context, entityID, base string, limit int) ([]string, error) {
	norm := NormalizeName(base)
	if norm == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM facts
		 WHERE entity_id = $1 AND valid_to IS NULL
		   AND name LIKE '%' || $2 || '%'
		   AND name <> $2
		 ORDER BY name
		 LIMIT $3`, entityID, norm, limit)
	if err != nil {
		return nil, fmt.Errorf("facts: similar names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// TrustedFactInput is an operator- or user-supplied correction.
type TrustedFactInput struct {
	Entity    string `json:"entity"`
	Field     string `json:"field"`
	Value     any    `json:"value"`
	Source    string `json:"source,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// SetTrustedFact records a correction against an already-resolved entity.
// Confidence moves monotonically toward 1: new = (current + 1) / 2, with
// 0.5 assumed when no current fact exists.
func (s *Store) SetTrustedFact(ctx context.Context, in TrustedFactInput) error {
	if strings.TrimSpace(in.Entity) == "" || strings.TrimSpace(in.Field) == "" {
		return fmt.Errorf("facts: trusted fact needs entity and field")
	}

	ref, err := s.resolver.TryResolveExisting(ctx, in.Entity)
	if err != nil {
		return err
	}
	if ref == nil {
		return fmt.Errorf("%w: %s", ErrEntityUnresolved, in.Entity)
	}

	current := 0.5
	if existing, err := s.GetFact(ctx, ref.ID, in.Field); err == nil && existing != nil && existing.Confidence != nil {
		current = *existing.Confidence
	}
	confidence := (current + 1.0) / 2.0

	var sources []types.Source
	if in.Source != "" {
		sources = append(sources, types.Source{URL: in.Source, Title: "Trusted correction"})
	}

	notes := ""
	if in.UpdatedBy != "" {
		notes = "updated by " + in.UpdatedBy
	}

	v := types.MagicVariable{
		Subject:    &types.Subject{Name: ref.Name, Type: ref.Type, CanonicalID: ref.ID},
		Name:       in.Field,
		DType:      types.InferDType(in.Value),
		Value:      in.Value,
		Confidence: confidence,
		Sources:    sources,
		Notes:      notes,
	}
	return s.StoreFact(ctx, v, nil)
}

// NormalizeName lowercases a variable name, maps spaces and hyphens to
// underscores, drops every other rune that is not a letter, digit or
// underscore, and trims leading and trailing underscores.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*types.Fact, error) {
	var (
		fact        types.Fact
		valueJSON   string
		sourcesJSON string
		dtype       string
		confidence  sql.NullFloat64
		validTo     sql.NullTime
	)
	err := row.Scan(&fact.ID, &fact.EntityID, &fact.Name, &valueJSON, &dtype,
		&confidence, &sourcesJSON, &fact.Notes, &fact.ObservedAt, &fact.ValidFrom, &validTo)
	if err != nil {
		return nil, err
	}

	fact.DType = types.DType(dtype)
	if confidence.Valid {
		fact.Confidence = &confidence.Float64
	}
	if validTo.Valid {
		fact.ValidTo = &validTo.Time
	}
	if err := json.Unmarshal([]byte(valueJSON), &fact.Value); err != nil {
		fact.Value = valueJSON
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &fact.Sources); err != nil {
		fact.Sources = nil
	}
	return &fact, nil
}

func normalizeSources(sources []types.Source) []types.Source {
	if sources == nil {
		return []types.Source{}
	}
	return sources
}
