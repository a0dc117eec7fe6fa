// Package remote defines the client interface to the channel/message object
// backend that physically stores file parts. The transfer pipelines depend
// only on this interface; concrete transports (see s3remote) implement it.
//
// Identifiers and access credentials are opaque strings minted by the
// backend. The transfer code passes them through without interpretation.
package remote

import "context"

// ChannelRef names a channel before it has been resolved for this session.
type ChannelRef string

// MessageRef names one message (one stored file part) inside a channel.
type MessageRef string

// Channel is a resolved channel: its canonical id plus the access credential
// that must accompany every subsequent call touching it.
type Channel struct {
	ID          string
	AccessToken string
}

// Document locates the stored bytes behind a message.
type Document struct {
	ID          string
	AccessToken string
	FileRef     string
}

// Message is a resolved message wrapping its media document.
type Message struct {
	ID       string
	Document Document
}

// CommitRequest finalizes an uploaded object into a channel message.
type CommitRequest struct {
	FileID   uint64
	Parts    int
	Filename string
	MIME     string
}

// Committed is the backend's record of a finalized object.
type Committed struct {
	MessageID  string
	DocumentID string
	Filename   string
}

// UnknownTotalParts is passed to SendFilePart while the final page count of
// an object is not yet known.
const UnknownTotalParts = -1

// Client is the remote object backend collaborator.
//
// All methods are blocking round-trips; none of them retries internally.
// Implementations map their native failures onto the sentinel errors in
// internal/common (ErrChannelNotFound, ErrAccessDenied, ErrBackendFetch,
// ErrBackendPush) so callers can match with errors.Is.
type Client interface {
	// GetChannel resolves a channel reference to its id and access credential.
	GetChannel(ctx context.Context, ref ChannelRef) (Channel, error)

	// GetMessage resolves one message of a channel to its media document.
	GetMessage(ctx context.Context, ch Channel, msg MessageRef) (Message, error)

	// GetFilePage fetches up to limit bytes of a document starting at offset.
	// A short page is returned only for the final page of the document.
	GetFilePage(ctx context.Context, doc Document, offset uint64, limit int) ([]byte, error)

	// SendFilePart uploads one page of an in-progress object. totalParts is
	// UnknownTotalParts except on the object's last page, where it carries
	// the final page count.
	SendFilePart(ctx context.Context, fileID uint64, partIndex int, totalParts int, data []byte) error

	// MoveFileToChannel commits a fully uploaded object as a message of ch.
	MoveFileToChannel(ctx context.Context, ch Channel, req CommitRequest) (Committed, error)

	// MaxUploadParts reports the backend's hard cap on pages per object.
	MaxUploadParts(ctx context.Context) (int, error)
}
