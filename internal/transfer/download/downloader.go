// Package download implements the read side of chanfile: resolving a byte
// range over a part manifest and streaming the selected windows, page by
// page, from the remote backend into a caller-provided sink.
package download

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/logging"
	"github.com/dkravets/chanfile/internal/remote"
	"github.com/dkravets/chanfile/internal/transfer"
)

// Range describes what a Downloader session will deliver.
type Range struct {
	Start uint64
	End   uint64
	Total uint64
}

// Downloader is a single-use download session over a part manifest.
// Construct with New, run with Execute, cancel with Stop.
type Downloader struct {
	id       string
	parts    []transfer.FilePart
	rng      transfer.ByteRange
	total    uint64
	pageSize int

	aborted  atomic.Bool
	executed atomic.Bool

	log logging.Logger
}

// New creates a download session for the inclusive byte range [start, end]
// over the given ordered part manifest. sessionID may be empty, in which
// case one is generated. pageSize <= 0 selects the backend default.
func New(sessionID string, parts []transfer.FilePart, start, end uint64, pageSize int, log logging.Logger) *Downloader {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if pageSize <= 0 {
		pageSize = common.PageSize
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Downloader{
		id:       sessionID,
		parts:    parts,
		rng:      transfer.ByteRange{Start: start, End: end},
		total:    transfer.TotalSize(parts),
		pageSize: pageSize,
		log:      log.With("session", sessionID),
	}
}

// SessionID returns the correlation id of this session.
func (d *Downloader) SessionID() string {
	return d.id
}

// Range returns the requested window and the manifest's total size.
func (d *Downloader) Range() Range {
	return Range{Start: d.rng.Start, End: d.rng.End, Total: d.total}
}

// Stop requests cooperative termination. Safe to call from any goroutine,
// any number of times. The in-flight page fetch finishes and is written
// before the loops exit; the sink is still closed by Execute.
func (d *Downloader) Stop() {
	d.aborted.Store(true)
}

// Execute runs the session: it resolves the range once, then for each
// selected part resolves the channel and message and streams the part's
// local byte window into sink. Bytes arrive in strictly increasing offset
// order with no gaps or duplication.
//
// The sink is closed exactly once, on every exit path, including abort and
// backend failure. Execute may be called only once per Downloader.
func (d *Downloader) Execute(ctx context.Context, client remote.Client, sink io.WriteCloser) (err error) {
	if !d.executed.CompareAndSwap(false, true) {
		return common.ErrSessionConsumed
	}

	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	resolved, err := transfer.Resolve(d.parts, d.rng)
	if err != nil {
		return err
	}

	d.log.Info(ctx, "download started",
		"start", d.rng.Start, "end", d.rng.End, "parts", len(resolved))

	for _, pr := range resolved {
		if d.aborted.Load() {
			d.log.Info(ctx, "download aborted", "part", pr.PartIndex)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ch, err := client.GetChannel(ctx, pr.Part.Channel)
		if err != nil {
			return fmt.Errorf("resolve channel %q: %w", pr.Part.Channel, err)
		}

		msg, err := client.GetMessage(ctx, ch, pr.Part.Message)
		if err != nil {
			return fmt.Errorf("resolve message %q: %w", pr.Part.Message, err)
		}

		ps := &pageStreamer{
			client:   client,
			doc:      msg.Document,
			start:    pr.StartOffset,
			end:      pr.EndOffset,
			pageSize: d.pageSize,
			aborted:  &d.aborted,
			log:      d.log,
		}
		if err := ps.run(ctx, sink); err != nil {
			return fmt.Errorf("part %d: %w", pr.PartIndex, err)
		}
	}

	if !d.aborted.Load() {
		d.log.Info(ctx, "download complete", "bytes", d.rng.Len())
	}
	return nil
}
