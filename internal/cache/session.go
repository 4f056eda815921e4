package cache

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// Activity window and caps for the session bootstrap snapshot.
const (
	sessionActivityWindow = 24 * time.Hour
	sessionActivityLimit  = 3
)

// Session is the bootstrap payload handed to a fresh assistant session: the
// full stable prefix to warm the cache with, its fingerprint for later
// validity checks, and a recent-activity digest.
type Session struct {
	ID              string              `json:"session_id"`
	Workspace       string              `json:"workspace"`
	Stable          *StableBundle       `json:"stable_context"`
	RecentActivity  *knowledge.Activity `json:"recent_activity,omitempty"`
	Recommendations []string            `json:"recommendations"`
	StartedAt       int64               `json:"started_at"`
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newSessionID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// InitializeSession builds the stable prefix, gathers the last day of
// knowledge activity, and records the session start. The session record
// write is fire-and-forget: a failure is logged but never blocks bootstrap.
func InitializeSession(store knowledge.Store, workspace string) *Session {
	now := time.Now()
	session := &Session{
		ID:        newSessionID(),
		Workspace: workspace,
		Stable:    BuildStablePrefix(store, workspace, FormatOllamaOptimized),
		StartedAt: now.Unix(),
	}

	since := now.Add(-sessionActivityWindow).Unix()
	if activity, err := store.RecentActivity(workspace, since, sessionActivityLimit); err == nil {
		session.RecentActivity = activity
	}

	session.Recommendations = sessionRecommendations(session)

	record := content.NewMap().
		Set("session_id", content.String(session.ID)).
		Set("stable_fingerprint", content.String(session.Stable.Fingerprint)).
		Set("stable_tokens", content.Int(int64(session.Stable.TotalTokens))).
		Set("started_at", content.Int(session.StartedAt)).
		Value()
	if err := store.AppendSessionRecord(workspace, session.ID, record); err != nil {
		log.Printf("session %s: failed to persist session record: %v", session.ID, err)
	}

	return session
}

// sessionRecommendations tells the caller how to use the bootstrap payload.
func sessionRecommendations(s *Session) []string {
	recs := []string{
		"Load the stable context as your prompt prefix to maximize cache reuse.",
		"Re-check the fingerprint before reusing a cached prefix in later requests.",
	}
	if s.Stable.TotalTokens == 0 {
		recs = append(recs, "No stable context found; populate the project context to enable caching.")
	}
	if s.RecentActivity != nil &&
		(len(s.RecentActivity.Decisions) > 0 || len(s.RecentActivity.Progress) > 0) {
		recs = append(recs, "Review recent activity before continuing in-flight work.")
	}
	return recs
}
