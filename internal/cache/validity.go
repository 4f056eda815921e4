package cache

import (
	"time"

	"github.com/rmarchant/plinth/internal/knowledge"
)

// Recommendation values for a validity check.
const (
	RecommendReuse   = "reuse"
	RecommendRefresh = "refresh"
)

// Change describes one tracked category that moved since a fingerprint was
// computed. Category "unknown" means attribution could not be determined.
type Change struct {
	Category     string `json:"type"`
	LastModified int64  `json:"last_modified"`
	Note         string `json:"note,omitempty"`
}

// CacheValidity reports whether a previously built stable prefix may be
// reused unchanged.
type CacheValidity struct {
	Valid               bool     `json:"cache_valid"`
	CurrentFingerprint  string   `json:"current_fingerprint"`
	SuppliedFingerprint string   `json:"supplied_fingerprint,omitempty"`
	Changes             []Change `json:"changes_detected,omitempty"`
	Recommendation      string   `json:"recommendation"`
	StableTokens        int      `json:"stable_content_size"`
}

// attributedCategories are the stable-prefix inputs checked during change
// attribution, in report order.
var attributedCategories = []string{
	knowledge.CategoryProjectContext,
	knowledge.CategorySystemPatterns,
	knowledge.CategoryCriticalCustomData,
}

// CheckValidity recomputes the stable prefix and compares its fingerprint
// against the caller-supplied one. An empty supplied fingerprint is never
// valid (there is nothing to reuse). On mismatch, change attribution is
// best-effort: it leans on the store's approximate fingerprint timestamp and
// degrades to a single "unknown" change when the lookup cannot answer.
func CheckValidity(store knowledge.Store, workspace, suppliedFingerprint string) *CacheValidity {
	current := BuildStablePrefix(store, workspace, FormatOllamaOptimized)

	valid := suppliedFingerprint != "" && suppliedFingerprint == current.Fingerprint

	result := &CacheValidity{
		Valid:               valid,
		CurrentFingerprint:  current.Fingerprint,
		SuppliedFingerprint: suppliedFingerprint,
		Recommendation:      RecommendRefresh,
		StableTokens:        current.TotalTokens,
	}
	if valid {
		result.Recommendation = RecommendReuse
		return result
	}

	if suppliedFingerprint != "" {
		result.Changes = attributeChanges(store, workspace, suppliedFingerprint)
	}
	return result
}

// attributeChanges reports each tracked category modified after the supplied
// fingerprint's approximate creation time.
func attributeChanges(store knowledge.Store, workspace, fingerprint string) []Change {
	fingerprintTime := store.ApproxFingerprintTime(fingerprint)

	var changes []Change
	for _, category := range attributedCategories {
		lastModified, err := store.LastModified(workspace, category)
		if err != nil {
			return []Change{unknownChange()}
		}
		if lastModified > fingerprintTime {
			changes = append(changes, Change{
				Category:     category,
				LastModified: lastModified,
			})
		}
	}
	return changes
}

func unknownChange() Change {
	return Change{
		Category:     "unknown",
		LastModified: time.Now().Unix(),
		Note:         "unable to determine specific changes",
	}
}
