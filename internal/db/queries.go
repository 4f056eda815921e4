package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// fingerprintTimeOffset approximates "when was this fingerprint computed".
// The fingerprint itself carries no timestamp, so the store answers with
// now minus a small offset; change attribution built on this is best-effort.
const fingerprintTimeOffset = time.Minute

// NormalizeWorkspace trims the workspace identifier and defaults it.
func NormalizeWorkspace(workspace string) string {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return "default"
	}
	return workspace
}

// ProjectContext returns the project context content, null when absent.
func (s *Store) ProjectContext(workspace string) (content.Value, error) {
	return s.readContext("product_context", workspace)
}

// ActiveContext returns the active context content, null when absent.
func (s *Store) ActiveContext(workspace string) (content.Value, error) {
	return s.readContext("active_context", workspace)
}

func (s *Store) readContext(table, workspace string) (content.Value, error) {
	var raw string
	err := s.db.QueryRow(
		"SELECT content FROM "+table+" WHERE workspace = ?",
		NormalizeWorkspace(workspace),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return content.Null(), nil
	}
	if err != nil {
		return content.Null(), errors.NewStoreUnavailable(err)
	}

	v, err := content.FromJSON([]byte(raw))
	if err != nil {
		return content.Null(), errors.NewInternal(err)
	}
	return v, nil
}

// SystemPatterns returns patterns, most recently modified first.
func (s *Store) SystemPatterns(workspace string, limit int) ([]knowledge.Pattern, error) {
	query := `
		SELECT id, name, description, tags_json, timestamp
		FROM system_patterns
		WHERE workspace = ?
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{NormalizeWorkspace(workspace)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var patterns []knowledge.Pattern
	for rows.Next() {
		var p knowledge.Pattern
		var description, tagsJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &tagsJSON, &p.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		p.Description = description.String
		p.Tags = decodeTags(tagsJSON)
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return patterns, nil
}

// CacheFlaggedCustomData returns custom entries flagged cache-worthy,
// ordered by category then key so dependent renders are deterministic.
func (s *Store) CacheFlaggedCustomData(workspace string) ([]knowledge.CustomEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, category, key, value_json, cache_hint, cache_score, timestamp
		FROM custom_data
		WHERE workspace = ? AND cache_hint = 1
		ORDER BY category ASC, key ASC
	`, NormalizeWorkspace(workspace))
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	return scanCustomEntries(rows)
}

// CustomData returns custom entries for a category, or all categories when
// category is empty. Session records are excluded.
func (s *Store) CustomData(workspace, category string) ([]knowledge.CustomEntry, error) {
	query := `
		SELECT id, category, key, value_json, cache_hint, cache_score, timestamp
		FROM custom_data
		WHERE workspace = ? AND category != ?
	`
	args := []any{NormalizeWorkspace(workspace), sessionCategory}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY category ASC, key ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	return scanCustomEntries(rows)
}

func scanCustomEntries(rows *sql.Rows) ([]knowledge.CustomEntry, error) {
	var entries []knowledge.CustomEntry
	for rows.Next() {
		var e knowledge.CustomEntry
		var valueJSON string
		var cacheHint int
		if err := rows.Scan(&e.ID, &e.Category, &e.Key, &valueJSON, &cacheHint, &e.CacheScore, &e.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		v, err := content.FromJSON([]byte(valueJSON))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		e.Value = v
		e.CacheHint = cacheHint != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return entries, nil
}

// Decisions returns decisions, most recent first.
func (s *Store) Decisions(workspace string, limit int) ([]knowledge.Decision, error) {
	query := `
		SELECT id, summary, rationale, implementation_details, tags_json, timestamp
		FROM decisions
		WHERE workspace = ?
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{NormalizeWorkspace(workspace)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var decisions []knowledge.Decision
	for rows.Next() {
		var d knowledge.Decision
		var rationale, details, tagsJSON sql.NullString
		if err := rows.Scan(&d.ID, &d.Summary, &rationale, &details, &tagsJSON, &d.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		d.Rationale = rationale.String
		d.ImplementationDetails = details.String
		d.Tags = decodeTags(tagsJSON)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return decisions, nil
}

// Progress returns progress entries, most recent first, optionally filtered
// by status.
func (s *Store) Progress(workspace, statusFilter string, limit int) ([]knowledge.ProgressEntry, error) {
	query := `
		SELECT id, status, description, parent_id, timestamp
		FROM progress_entries
		WHERE workspace = ?
	`
	args := []any{NormalizeWorkspace(workspace)}
	if statusFilter != "" {
		query += " AND status = ?"
		args = append(args, statusFilter)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var entries []knowledge.ProgressEntry
	for rows.Next() {
		var e knowledge.ProgressEntry
		var parentID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Status, &e.Description, &parentID, &e.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		if parentID.Valid {
			e.ParentID = &parentID.Int64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return entries, nil
}

// LastModified returns the Unix timestamp of the most recent change in the
// given tracked category, 0 when the category has no records or is unknown.
func (s *Store) LastModified(workspace, category string) (int64, error) {
	ws := NormalizeWorkspace(workspace)

	var query string
	args := []any{ws}
	switch category {
	case knowledge.CategoryProjectContext:
		query = "SELECT MAX(timestamp) FROM product_context_history WHERE workspace = ?"
	case knowledge.CategoryActiveContext:
		query = "SELECT MAX(timestamp) FROM active_context_history WHERE workspace = ?"
	case knowledge.CategorySystemPatterns:
		query = "SELECT MAX(timestamp) FROM system_patterns WHERE workspace = ?"
	case knowledge.CategoryCriticalCustomData:
		query = "SELECT MAX(timestamp) FROM custom_data WHERE workspace = ? AND cache_hint = 1"
	case knowledge.CategoryDecisions:
		query = "SELECT MAX(timestamp) FROM decisions WHERE workspace = ?"
	case knowledge.CategoryProgress:
		query = "SELECT MAX(timestamp) FROM progress_entries WHERE workspace = ?"
	default:
		return 0, nil
	}

	var ts sql.NullInt64
	if err := s.db.QueryRow(query, args...).Scan(&ts); err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// ApproxFingerprintTime returns a best-effort timestamp for when the given
// fingerprint was computed. See fingerprintTimeOffset.
func (s *Store) ApproxFingerprintTime(fingerprint string) int64 {
	return time.Now().Add(-fingerprintTimeOffset).Unix()
}

// decodeTags unmarshals a tags_json column; malformed or empty yields nil.
func decodeTags(tagsJSON sql.NullString) []string {
	if !tagsJSON.Valid || tagsJSON.String == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
		return nil
	}
	return tags
}

// encodeTags marshals tags for storage; empty yields NULL.
func encodeTags(tags []string) sql.NullString {
	if len(tags) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}
