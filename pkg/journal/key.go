package journal

import (
	"fmt"
	"strings"
)

// KeyPrefix is the common prefix of every journal key.
const KeyPrefix = "xogm"

// PageKey identifies one page of a run. Bundle is the position of the
// page's bundle in the migrated request; content pack bundles all share the
// contentPack object type.
type PageKey struct {
	RunID      string
	Bundle     int
	ObjectType string
	Index      int
}

// String returns the Redis key of the page entry.
//
// Example:
//
//	xogm:page:projects-1:1:project:3
func (k PageKey) String() string {
	return strings.Join([]string{
		KeyPrefix, "page", k.RunID,
		fmt.Sprintf("%d", k.Bundle), normalize(k.ObjectType), fmt.Sprintf("%d", k.Index),
	}, ":")
}

// RunKey returns the Redis key of the run state hash.
func RunKey(runID string) string {
	return strings.Join([]string{KeyPrefix, "run", runID}, ":")
}

// PagePattern matches every page entry of a run.
func PagePattern(runID string) string {
	return strings.Join([]string{KeyPrefix, "page", runID, "*"}, ":")
}

// normalize keeps object types from introducing extra key segments.
func normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", "_")
}
