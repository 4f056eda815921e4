package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/knowledge"
)

// TestFullWorkflow exercises the engine against the real store:
// populate → session init → reuse check → mutate → refresh check → dynamic
func TestFullWorkflow(t *testing.T) {
	store, err := db.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ws := "workflow-test"

	// 1. Populate the stable knowledge categories
	product := content.NewMap().
		Set("name", content.String("Plinth")).
		Set("description", content.String("knowledge-backed context server")).
		Set("technologies", content.List(content.String("go"), content.String("sqlite"))).
		Value()
	require.NoError(t, store.UpdateProjectContext(ws, db.ContextUpdate{Content: &product}))

	_, err = store.LogPattern(ws, knowledge.Pattern{
		Name:        "Repository",
		Description: "data access behind an interface",
	})
	require.NoError(t, err)

	_, err = store.LogCustomData(ws, knowledge.CustomEntry{
		Category:  "Specifications",
		Key:       "wire_format",
		Value:     content.String("length-prefixed frames"),
		CacheHint: true,
	})
	require.NoError(t, err)

	// 2. Session bootstrap
	session := InitializeSession(store, ws)
	require.Len(t, session.ID, 26)
	require.Len(t, session.Stable.Sections, 3)
	require.Greater(t, session.Stable.TotalTokens, 0)

	// Session record landed but stays out of regular custom data listings
	entries, err := store.CustomData(ws, "")
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, session.ID, e.Key)
	}

	// 3. Unchanged knowledge → reuse
	check := CheckValidity(store, ws, session.Stable.Fingerprint)
	require.True(t, check.Valid)
	require.Equal(t, RecommendReuse, check.Recommendation)

	// 4. Classify reflects all tiers
	classified := Classify(store, ws)
	require.NotEmpty(t, classified)
	require.Equal(t, PriorityHigh, classified[0].Priority)

	// 5. Mutate stable knowledge → refresh with attribution
	patch := content.NewMap().Set("phase", content.String("beta")).Value()
	require.NoError(t, store.UpdateProjectContext(ws, db.ContextUpdate{Patch: &patch}))

	check = CheckValidity(store, ws, session.Stable.Fingerprint)
	require.False(t, check.Valid)
	require.Equal(t, RecommendRefresh, check.Recommendation)
	require.NotEmpty(t, check.Changes)
	require.Equal(t, knowledge.CategoryProjectContext, check.Changes[0].Category)

	// 6. Dynamic assembly within budget
	_, err = store.LogDecision(ws, knowledge.Decision{
		Summary:   "Adopt sqlite",
		Rationale: "zero ops",
		Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)

	bundle, err := AssembleDynamic(store, ws, "what was the design choice", 2000)
	require.NoError(t, err)
	require.LessOrEqual(t, bundle.TotalTokens, 2000)
	require.Equal(t, 2000, bundle.BudgetUsed+bundle.BudgetRemaining)
	require.NotEmpty(t, bundle.Sections)
}
