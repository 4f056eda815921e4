// Package knowledge defines the project-knowledge item types and the
// read-side store contract the context engine consumes. The engine never
// mutates knowledge; the only write it performs is the fire-and-forget
// session record append.
package knowledge

import "github.com/rmarchant/plinth/internal/content"

// Tracked categories for last-modified lookups and change attribution.
const (
	CategoryProjectContext     = "project_context"
	CategorySystemPatterns     = "system_patterns"
	CategoryCriticalCustomData = "critical_custom_data"
	CategoryActiveContext      = "active_context"
	CategoryDecisions          = "decisions"
	CategoryProgress           = "progress"
)

// Progress status values.
const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Decision is a logged architectural or implementation decision.
type Decision struct {
	ID                    int64    `json:"id"`
	Summary               string   `json:"summary"`
	Rationale             string   `json:"rationale,omitempty"`
	ImplementationDetails string   `json:"implementation_details,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
	Timestamp             int64    `json:"timestamp"`
}

// Pattern is a named system/architecture pattern.
type Pattern struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// ProgressEntry is a task-progress record.
type ProgressEntry struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// CustomEntry is a freeform knowledge record under a category/key.
type CustomEntry struct {
	ID         int64         `json:"id"`
	Category   string        `json:"category"`
	Key        string        `json:"key"`
	Value      content.Value `json:"value"`
	CacheHint  bool          `json:"cache_hint,omitempty"`
	CacheScore int           `json:"cache_score"`
	Timestamp  int64         `json:"timestamp"`
}

// Activity summarizes recent knowledge mutations for session bootstrap.
type Activity struct {
	Since     int64           `json:"since"`
	Decisions []Decision      `json:"decisions,omitempty"`
	Progress  []ProgressEntry `json:"progress,omitempty"`
	Patterns  []Pattern       `json:"patterns,omitempty"`
}

// Store is the read interface the context engine consumes. Implementations
// must treat missing data as empty results, not errors; errors signal that
// the store itself is unreachable for that read.
type Store interface {
	// ProjectContext returns the project context content (null when absent).
	ProjectContext(workspace string) (content.Value, error)

	// ActiveContext returns the active/session context content (null when absent).
	ActiveContext(workspace string) (content.Value, error)

	// SystemPatterns returns patterns, most recently modified first.
	// limit <= 0 means no limit.
	SystemPatterns(workspace string, limit int) ([]Pattern, error)

	// CacheFlaggedCustomData returns custom entries flagged cache-worthy.
	CacheFlaggedCustomData(workspace string) ([]CustomEntry, error)

	// Decisions returns decisions, most recent first. limit <= 0 means no limit.
	Decisions(workspace string, limit int) ([]Decision, error)

	// Progress returns progress entries, most recent first, optionally
	// filtered by status. limit <= 0 means no limit.
	Progress(workspace string, statusFilter string, limit int) ([]ProgressEntry, error)

	// LastModified returns the Unix timestamp of the most recent change in
	// the given tracked category, 0 when unknown.
	LastModified(workspace, category string) (int64, error)

	// RecentActivity returns items created or modified after since, capped
	// at limitPerType for each item type.
	RecentActivity(workspace string, since int64, limitPerType int) (*Activity, error)

	// ApproxFingerprintTime returns a best-effort Unix timestamp for when
	// the given fingerprint was computed. Implementations may approximate.
	ApproxFingerprintTime(fingerprint string) int64

	// AppendSessionRecord persists an opaque session record. Failures are
	// the caller's to log; this write has no ordering dependency on reads.
	AppendSessionRecord(workspace, sessionID string, record content.Value) error
}
