package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dkravets/chanfile/internal/remote"
	"github.com/dkravets/chanfile/internal/transfer"
	"github.com/dkravets/chanfile/internal/transfer/upload"
)

// Manifest is the on-disk record of an uploaded file: its name and the
// ordered parts it was split into. Portions that stayed memory-resident at
// upload time are carried inline (base64 in JSON) since they have no
// backend message.
type Manifest struct {
	Filename string         `json:"filename"`
	Parts    []ManifestPart `json:"parts"`
}

type ManifestPart struct {
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
	Size    uint64 `json:"size"`
	Inline  []byte `json:"inline,omitempty"`
}

// TotalSize sums all part sizes.
func (m *Manifest) TotalSize() uint64 {
	var total uint64
	for _, p := range m.Parts {
		total += p.Size
	}
	return total
}

// FileParts converts the manifest to the transfer model. Inline parts keep
// their size but have no message; the download path serves them locally.
func (m *Manifest) FileParts(channel string) []transfer.FilePart {
	parts := make([]transfer.FilePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		ch := p.Channel
		if ch == "" {
			ch = channel
		}
		parts = append(parts, transfer.FilePart{
			Channel: remote.ChannelRef(ch),
			Message: remote.MessageRef(p.Message),
			Size:    p.Size,
		})
	}
	return parts
}

// ManifestFromLedger records the result of an upload session.
func ManifestFromLedger(filename, channel string, portions []*upload.Portion) *Manifest {
	m := &Manifest{Filename: filename}
	for _, p := range portions {
		mp := ManifestPart{Size: p.Size}
		if p.Inline() {
			mp.Inline = p.BufferedContent
		} else {
			mp.Channel = channel
			mp.Message = p.MessageID
		}
		m.Parts = append(m.Parts, mp)
	}
	return m
}

// ReadManifest decodes a manifest and validates it minimally.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Parts) == 0 {
		return nil, fmt.Errorf("manifest has no parts")
	}
	for i, p := range m.Parts {
		// size-0 parts legitimately carry no content at all
		if p.Message == "" && p.Inline == nil && p.Size > 0 {
			return nil, fmt.Errorf("manifest part %d has neither message nor inline content", i)
		}
		if p.Inline != nil && uint64(len(p.Inline)) != p.Size {
			return nil, fmt.Errorf("manifest part %d: inline size mismatch", i)
		}
	}
	return &m, nil
}

// WriteManifest encodes m as indented JSON.
func WriteManifest(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}
