// Package transfer holds the shared data model of both transfer pipelines:
// the part manifest describing how a logical file is laid out over channel
// messages, and the pure range arithmetic mapping byte ranges onto it.
package transfer

import "github.com/dkravets/chanfile/internal/remote"

// FilePart is one physically stored segment of a logical file. The caller
// supplies parts as an ordered slice; concatenation in slice order defines
// the byte layout of the whole file.
type FilePart struct {
	Channel remote.ChannelRef `json:"channel"`
	Message remote.MessageRef `json:"message"`
	Size    uint64            `json:"size"`
}

// ByteRange is an inclusive byte range over the concatenated file:
// End is the index of the last byte to deliver.
type ByteRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes the range covers.
func (r ByteRange) Len() uint64 {
	return r.End - r.Start + 1
}

// ResolvedPartRange selects a byte window inside one part. StartOffset is
// inclusive, EndOffset exclusive, both local to the part.
type ResolvedPartRange struct {
	PartIndex   int
	Part        FilePart
	StartOffset uint64
	EndOffset   uint64
}

// TotalSize sums the sizes of all parts.
func TotalSize(parts []FilePart) uint64 {
	var total uint64
	for _, p := range parts {
		total += p.Size
	}
	return total
}
