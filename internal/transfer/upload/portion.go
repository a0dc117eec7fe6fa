package upload

import (
	"crypto/rand"
	"encoding/binary"
)

// Portion is one logical part being assembled by an upload session. It is
// mutated by the Uploader until finalized and must not be touched by the
// caller before then. After finalize either MessageID is set (the portion
// became a backend message) or BufferedContent holds the whole object (the
// small-file case, never pushed page-wise).
type Portion struct {
	// Index is the portion's position in the ledger, starting at 0.
	Index int `json:"index"`

	// FileID is the client-minted id the backend aggregates pages under.
	FileID uint64 `json:"fileId"`

	// PageIndex is the index of the last page pushed, -1 before the first.
	PageIndex int `json:"pageIndex"`

	MIME     string `json:"mime"`
	Filename string `json:"filename"`

	// MessageID and DocumentID are assigned by the backend at commit.
	MessageID  string `json:"messageId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`

	// Size is the number of content bytes accumulated so far.
	Size uint64 `json:"size"`

	// BufferedContent is set instead of MessageID for objects that stayed
	// below the minimum buffering threshold.
	BufferedContent []byte `json:"-"`
}

// Pages returns the number of pages pushed for this portion (zero for
// inline portions).
func (p *Portion) Pages() int {
	if p.PageIndex < 0 {
		return 0
	}
	return p.PageIndex + 1
}

// Inline reports whether the portion was finalized memory-resident.
func (p *Portion) Inline() bool {
	return p.BufferedContent != nil
}

func newFileID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return binary.BigEndian.Uint64(b[:])
}
