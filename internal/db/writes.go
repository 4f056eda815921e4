package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// sessionCategory is the custom-data category session records land in.
const sessionCategory = "__session_state__"

// ContextUpdate carries a context mutation. Exactly one of Content (full
// overwrite) or Patch (add/update keys; a null value removes the key) must
// be set.
type ContextUpdate struct {
	Content      *content.Value
	Patch        *content.Value
	ChangeSource string
}

// UpdateProjectContext overwrites or patches the project context, recording
// the new version in the history table.
func (s *Store) UpdateProjectContext(workspace string, update ContextUpdate) error {
	return s.updateContext("product_context", workspace, update)
}

// UpdateActiveContext overwrites or patches the active context, recording
// the new version in the history table.
func (s *Store) UpdateActiveContext(workspace string, update ContextUpdate) error {
	return s.updateContext("active_context", workspace, update)
}

func (s *Store) updateContext(table, workspace string, update ContextUpdate) error {
	if (update.Content == nil) == (update.Patch == nil) {
		return errors.NewInvalidRequest("exactly one of content or patch_content must be provided")
	}
	if update.Patch != nil && update.Patch.Kind() != content.KindMap {
		return errors.NewInvalidRequest("patch_content must be an object")
	}
	if update.Content != nil && update.Content.Kind() != content.KindMap {
		return errors.NewInvalidRequest("content must be an object")
	}

	ws := NormalizeWorkspace(workspace)
	now := time.Now().Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	var currentJSON string
	var version int64
	err = tx.QueryRow(
		"SELECT content, version FROM "+table+" WHERE workspace = ?", ws,
	).Scan(&currentJSON, &version)
	if err != nil && err != sql.ErrNoRows {
		return errors.NewStoreUnavailable(err)
	}

	var next content.Value
	if update.Content != nil {
		next = *update.Content
	} else {
		current := content.NewMap().Value()
		if currentJSON != "" {
			current, err = content.FromJSON([]byte(currentJSON))
			if err != nil {
				return errors.NewInternal(err)
			}
		}
		next = applyPatch(current, *update.Patch)
	}

	version++
	nextJSON := next.JSON()

	_, err = tx.Exec(`
		INSERT INTO `+table+` (workspace, content, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace) DO UPDATE SET
			content = excluded.content,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, ws, nextJSON, version, now)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}

	var changeSource sql.NullString
	if cs := strings.TrimSpace(update.ChangeSource); cs != "" {
		changeSource = sql.NullString{String: cs, Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO `+table+`_history (workspace, version, content, change_source, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, ws, version, nextJSON, changeSource, now)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreUnavailable(err)
	}
	return nil
}

// applyPatch merges patch keys into base. Existing keys keep their position;
// new keys append in patch order; a null patch value removes the key.
func applyPatch(base, patch content.Value) content.Value {
	merged := content.NewMap()
	removed := make(map[string]bool)
	for _, key := range patch.Keys() {
		if patch.Get(key).IsNull() {
			removed[key] = true
		}
	}

	for _, key := range base.Keys() {
		if removed[key] {
			continue
		}
		merged.Set(key, base.Get(key))
	}
	for _, key := range patch.Keys() {
		if removed[key] {
			continue
		}
		merged.Set(key, patch.Get(key))
	}
	return merged.Value()
}

// LogDecision inserts a decision and returns its ID.
func (s *Store) LogDecision(workspace string, d knowledge.Decision) (int64, error) {
	if strings.TrimSpace(d.Summary) == "" {
		return 0, errors.NewInvalidRequest("summary is required")
	}

	ts := d.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	result, err := s.db.Exec(`
		INSERT INTO decisions (workspace, summary, rationale, implementation_details, tags_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, NormalizeWorkspace(workspace), d.Summary,
		nullableString(d.Rationale), nullableString(d.ImplementationDetails),
		encodeTags(d.Tags), ts)
	if err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// DeleteDecision removes a decision by ID.
func (s *Store) DeleteDecision(workspace string, id int64) error {
	result, err := s.db.Exec(
		"DELETE FROM decisions WHERE workspace = ? AND id = ?",
		NormalizeWorkspace(workspace), id,
	)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("decision")
	}
	return nil
}

// LogProgress inserts a progress entry and returns its ID.
func (s *Store) LogProgress(workspace string, e knowledge.ProgressEntry) (int64, error) {
	if strings.TrimSpace(e.Description) == "" {
		return 0, errors.NewInvalidRequest("description is required")
	}
	if e.Status == "" {
		e.Status = knowledge.StatusTodo
	}

	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	var parentID sql.NullInt64
	if e.ParentID != nil {
		parentID = sql.NullInt64{Int64: *e.ParentID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO progress_entries (workspace, status, description, parent_id, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, NormalizeWorkspace(workspace), e.Status, e.Description, parentID, ts)
	if err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// LogPattern inserts a system pattern and returns its ID. Pattern names are
// unique per workspace.
func (s *Store) LogPattern(workspace string, p knowledge.Pattern) (int64, error) {
	if strings.TrimSpace(p.Name) == "" {
		return 0, errors.NewInvalidRequest("name is required")
	}

	ts := p.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	result, err := s.db.Exec(`
		INSERT INTO system_patterns (workspace, name, description, tags_json, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, NormalizeWorkspace(workspace), p.Name,
		nullableString(p.Description), encodeTags(p.Tags), ts)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, errors.NewAlreadyExists("pattern", p.Name)
		}
		return 0, errors.NewStoreUnavailable(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// LogCustomData upserts a custom-data entry by (workspace, category, key)
// and returns its ID.
func (s *Store) LogCustomData(workspace string, e knowledge.CustomEntry) (int64, error) {
	if strings.TrimSpace(e.Category) == "" || strings.TrimSpace(e.Key) == "" {
		return 0, errors.NewInvalidRequest("category and key are required")
	}

	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	cacheHint := 0
	if e.CacheHint {
		cacheHint = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO custom_data (workspace, category, key, value_json, cache_hint, cache_score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace, category, key) DO UPDATE SET
			value_json = excluded.value_json,
			cache_hint = excluded.cache_hint,
			cache_score = excluded.cache_score,
			timestamp = excluded.timestamp
	`, NormalizeWorkspace(workspace), e.Category, e.Key, e.Value.JSON(), cacheHint, e.CacheScore, ts)
	if err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}

	var id int64
	err = s.db.QueryRow(
		"SELECT id FROM custom_data WHERE workspace = ? AND category = ? AND key = ?",
		NormalizeWorkspace(workspace), e.Category, e.Key,
	).Scan(&id)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// DeleteCustomData removes a custom-data entry by category and key.
func (s *Store) DeleteCustomData(workspace, category, key string) error {
	result, err := s.db.Exec(
		"DELETE FROM custom_data WHERE workspace = ? AND category = ? AND key = ?",
		NormalizeWorkspace(workspace), category, key,
	)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(category + "/" + key)
	}
	return nil
}

// AppendSessionRecord persists an opaque session record as custom data under
// a reserved category.
func (s *Store) AppendSessionRecord(workspace, sessionID string, record content.Value) error {
	if sessionID == "" {
		return errors.NewInvalidRequest("session id is required")
	}
	_, err := s.LogCustomData(workspace, knowledge.CustomEntry{
		Category: sessionCategory,
		Key:      sessionID,
		Value:    record,
	})
	return err
}

// RecentActivity returns items created or modified after since, capped at
// limitPerType for each item type.
func (s *Store) RecentActivity(workspace string, since int64, limitPerType int) (*knowledge.Activity, error) {
	if limitPerType <= 0 {
		limitPerType = 5
	}
	ws := NormalizeWorkspace(workspace)

	activity := &knowledge.Activity{Since: since}

	decisions, err := s.Decisions(ws, 0)
	if err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if d.Timestamp >= since && len(activity.Decisions) < limitPerType {
			activity.Decisions = append(activity.Decisions, d)
		}
	}

	progress, err := s.Progress(ws, "", 0)
	if err != nil {
		return nil, err
	}
	for _, p := range progress {
		if p.Timestamp >= since && len(activity.Progress) < limitPerType {
			activity.Progress = append(activity.Progress, p)
		}
	}

	patterns, err := s.SystemPatterns(ws, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range patterns {
		if p.Timestamp >= since && len(activity.Patterns) < limitPerType {
			activity.Patterns = append(activity.Patterns, p)
		}
	}

	return activity, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
