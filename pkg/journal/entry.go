package journal

import (
	"time"
)

// Stage is the pipeline stage a page entry was recorded at.
type Stage string

const (
	StageRead    Stage = "read"
	StageWritten Stage = "written"
	StageFailed  Stage = "failed"
)

// PageEntry is the journal record of one page.
type PageEntry struct {
	RunID      string `json:"run_id"`
	Bundle     int    `json:"bundle"`
	ObjectType string `json:"object_type"`
	Index      int    `json:"index"`
	Skip       int    `json:"skip"`
	Stage      Stage  `json:"stage"`

	// Error is the write error message for failed pages.
	Error string `json:"error,omitempty"`

	// Payload is the serialized page; empty unless payloads are stored.
	Payload string `json:"payload,omitempty"`

	ReadAt    time.Time `json:"read_at"`
	WrittenAt time.Time `json:"written_at"`

	// Expires is when Redis drops the entry.
	Expires time.Time `json:"expires"`
}

// Key returns the entry's Redis key.
func (e *PageEntry) Key() PageKey {
	return PageKey{RunID: e.RunID, Bundle: e.Bundle, ObjectType: e.ObjectType, Index: e.Index}
}

// IsExpired returns true if the entry has expired.
func (e *PageEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *PageEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
