// Package upload implements the write side of chanfile: slicing an input
// byte stream into fixed-size pages, grouping pages into portions that
// respect the backend's pages-per-object cap, and committing each portion
// as a channel message. Small objects stay memory-resident instead of
// becoming one-page backend messages.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/logging"
	"github.com/dkravets/chanfile/internal/remote"
)

// Params tunes an upload session. Zero values select defaults.
type Params struct {
	// PageSize is the upload transfer unit. Defaults to common.PageSize.
	PageSize int

	// MinBufferSize keeps objects below this size memory-resident instead
	// of pushing them to the backend. Zero disables buffering.
	MinBufferSize uint64

	// MaxParts caps pages per portion when the backend does not report its
	// own cap. The backend value, when available, wins.
	MaxParts int

	// MIME is recorded on committed portions.
	// Defaults to application/octet-stream.
	MIME string
}

// Uploader is a single-use upload session producing an ordered portion
// ledger. Construct with New, optionally Prepare, then Execute once.
type Uploader struct {
	client   remote.Client
	channel  remote.ChannelRef
	filename string

	pageSize  int
	minBuffer uint64
	maxParts  int
	mime      string

	id     string
	log    logging.Logger
	events Events

	aborted  atomic.Bool
	executed atomic.Bool

	mu  sync.Mutex
	src io.Reader // set for the duration of Execute, for Stop to close

	prepared bool
	ch       remote.Channel

	portions []*Portion
	cur      *Portion
	buffer   []byte // page accumulator for the current portion
	flushed  bool   // current portion has pushed at least one page
}

// New creates an upload session targeting the given channel.
func New(client remote.Client, channel remote.ChannelRef, filename string, params Params, log logging.Logger, events Events) *Uploader {
	if params.PageSize <= 0 {
		params.PageSize = common.PageSize
	}
	if params.MIME == "" {
		params.MIME = "application/octet-stream"
	}
	if log == nil {
		log = logging.Nop()
	}
	id := uuid.NewString()
	return &Uploader{
		client:    client,
		channel:   channel,
		filename:  filename,
		pageSize:  params.PageSize,
		minBuffer: params.MinBufferSize,
		maxParts:  params.MaxParts,
		mime:      params.MIME,
		id:        id,
		log:       log.With("session", id),
		events:    events,
	}
}

// SessionID returns the correlation id of this session.
func (u *Uploader) SessionID() string {
	return u.id
}

// Ledger returns the portions produced so far. Valid after Execute returns
// (or after Stop took effect).
func (u *Uploader) Ledger() []*Portion {
	return u.portions
}

// Prepare resolves the target channel and the backend page cap once and
// caches both for the session. Execute calls it implicitly if needed.
func (u *Uploader) Prepare(ctx context.Context) error {
	if u.prepared {
		return nil
	}

	ch, err := u.client.GetChannel(ctx, u.channel)
	if err != nil {
		return fmt.Errorf("resolve channel %q: %w", u.channel, err)
	}
	u.ch = ch

	maxParts, err := u.client.MaxUploadParts(ctx)
	if err != nil {
		return fmt.Errorf("query upload limits: %w", err)
	}
	if maxParts > 0 {
		u.maxParts = maxParts
	}
	if u.maxParts <= 0 {
		return fmt.Errorf("backend reported no pages-per-object cap")
	}

	u.prepared = true
	return nil
}

// Stop requests cooperative termination: the session flag flips, the source
// stream is closed if it supports closing, and Stopped fires. Any finalize
// still in flight checks the flag before touching the backend. Abort is a
// clean early return from Execute, not an error.
//
// Stopped fires only when an execution is actually in flight; outside of
// Execute the flag still flips but there is nothing to interrupt.
func (u *Uploader) Stop() {
	if !u.aborted.CompareAndSwap(false, true) {
		return
	}
	u.mu.Lock()
	src := u.src
	u.mu.Unlock()
	if src == nil {
		return
	}
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
	u.events.stopped()
}

// Execute consumes src to the end, committing pages and finalizing portions
// as it goes, and returns the completed ledger. One page is in memory at a
// time, except for the deliberate small-object buffering window.
//
// Execute may be called only once per Uploader.
func (u *Uploader) Execute(ctx context.Context, src io.Reader) ([]*Portion, error) {
	if !u.executed.CompareAndSwap(false, true) {
		return nil, common.ErrSessionConsumed
	}

	if err := u.Prepare(ctx); err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.src = src
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.src = nil
		u.mu.Unlock()
	}()

	u.log.Info(ctx, "upload started", "channel", u.ch.ID, "filename", u.filename)

	u.openPortion()

	page := make([]byte, u.pageSize)
	for {
		if u.aborted.Load() {
			return u.portions, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := io.ReadFull(src, page)
		if n > 0 {
			// a partial read means the stream ended inside this page
			lastChunk := rerr != nil
			if err := u.commitPage(ctx, page[:n], lastChunk); err != nil {
				return nil, err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			if u.aborted.Load() {
				// Stop closed the source under the reader
				return u.portions, nil
			}
			return nil, fmt.Errorf("read source: %w", rerr)
		}
	}

	if u.aborted.Load() {
		return u.portions, nil
	}

	if u.cur.Size == 0 && len(u.portions) > 1 {
		// the stream ended exactly on a portion rollover
		u.portions = u.portions[:len(u.portions)-1]
	} else {
		if err := u.finalizePortion(ctx, u.cur, len(u.portions) > 1); err != nil {
			return nil, err
		}
	}

	if u.aborted.Load() {
		return u.portions, nil
	}

	u.log.Info(ctx, "upload complete", "portions", len(u.portions))
	u.events.completeUpload(u.portions, u.ch.ID)
	return u.portions, nil
}

func (u *Uploader) openPortion() {
	p := &Portion{
		Index:     len(u.portions),
		FileID:    newFileID(),
		PageIndex: -1,
		MIME:      u.mime,
		Filename:  u.filename,
	}
	u.portions = append(u.portions, p)
	u.cur = p
	u.buffer = nil
	u.flushed = false
}

// commitPage accounts one page of content against the current portion and
// either holds it in the accumulator (small-object policy) or pushes it.
func (u *Uploader) commitPage(ctx context.Context, data []byte, lastChunk bool) error {
	if !u.flushed && u.cur.Size+uint64(len(data)) < u.minBuffer {
		u.cur.Size += uint64(len(data))
		u.buffer = append(u.buffer, data...)
		return nil
	}

	// threshold crossed: drain anything buffered before this page goes out.
	// Accounting restarts at zero because sendPage re-counts each drained
	// page against whichever portion it lands in; the drain itself may hit
	// the page cap and roll over mid-way.
	if !u.flushed && len(u.buffer) > 0 {
		buffered := u.buffer
		u.buffer = nil
		u.cur.Size = 0
		for off := 0; off < len(buffered); off += u.pageSize {
			hi := min(off+u.pageSize, len(buffered))
			if err := u.sendPage(ctx, buffered[off:hi], false); err != nil {
				return err
			}
		}
	}

	return u.sendPage(ctx, data, lastChunk)
}

// sendPage pushes one page of the current portion. When the page fills the
// backend's pages-per-object cap mid-stream, it carries the portion's final
// page count, the portion is finalized and a fresh one opens for whatever
// the stream still holds.
func (u *Uploader) sendPage(ctx context.Context, data []byte, lastOfPortion bool) error {
	cur := u.cur
	idx := cur.PageIndex + 1
	capHit := idx == u.maxParts-1

	// either condition makes this the portion's final page
	totalParts := remote.UnknownTotalParts
	if lastOfPortion || capHit {
		totalParts = idx + 1
	}

	if err := u.client.SendFilePart(ctx, cur.FileID, idx, totalParts, data); err != nil {
		return fmt.Errorf("%w: portion %d page %d: %w", common.ErrBackendPush, cur.Index, idx, err)
	}
	cur.PageIndex = idx
	cur.Size += uint64(len(data))
	u.flushed = true
	u.log.Debug(ctx, "page pushed", "portion", cur.Index, "page", idx, "bytes", len(data))

	if capHit && !lastOfPortion {
		if err := u.finalizePortion(ctx, cur, true); err != nil {
			return err
		}
		u.openPortion()
	}
	return nil
}

// finalizePortion commits a portion: inline when nothing was ever pushed,
// otherwise by moving the uploaded object into the target channel. multi
// selects the 3-digit part suffix on the committed filename.
func (u *Uploader) finalizePortion(ctx context.Context, p *Portion, multi bool) error {
	if u.aborted.Load() {
		return nil
	}

	if !u.flushed {
		p.BufferedContent = u.buffer
		if p.BufferedContent == nil {
			p.BufferedContent = []byte{}
		}
		u.buffer = nil
		u.log.Info(ctx, "portion buffered inline", "portion", p.Index, "bytes", p.Size)
		u.events.portionUploaded(p)
		return nil
	}

	name := u.filename
	if multi || p.Index > 0 {
		name = fmt.Sprintf("%s.%03d", u.filename, p.Index+1)
	}

	committed, err := u.client.MoveFileToChannel(ctx, u.ch, remote.CommitRequest{
		FileID:   p.FileID,
		Parts:    p.Pages(),
		Filename: name,
		MIME:     p.MIME,
	})
	if err != nil {
		return fmt.Errorf("%w: commit portion %d: %w", common.ErrBackendPush, p.Index, err)
	}

	p.MessageID = committed.MessageID
	p.DocumentID = committed.DocumentID
	p.Filename = name
	if committed.Filename != "" {
		p.Filename = committed.Filename
	}

	u.log.Info(ctx, "portion committed",
		"portion", p.Index, "pages", p.Pages(), "bytes", p.Size, "message", p.MessageID)
	u.events.portionUploaded(p)
	return nil
}
