package download

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/logging"
	"github.com/dkravets/chanfile/internal/remote"
)

// pageStreamer pulls one document's byte window [start, end) from the
// backend in fixed-size pages and writes the trimmed result to a sink.
//
// Fetches are page-aligned: the first fetch starts at the page floor of
// start, and the leading bytes before start are dropped from the first page
// only. The final page is cut at end. The streamer never closes the sink;
// in a multi-part download it runs once per part and end-of-document must
// not look like end-of-stream to the caller.
type pageStreamer struct {
	client   remote.Client
	doc      remote.Document
	start    uint64 // inclusive, local to the document
	end      uint64 // exclusive, local to the document
	pageSize int
	aborted  *atomic.Bool
	log      logging.Logger
}

func (s *pageStreamer) run(ctx context.Context, w io.Writer) error {
	if s.start >= s.end {
		return nil
	}

	pageSize := uint64(s.pageSize)
	offset := s.start - s.start%pageSize
	first := true

	for {
		if s.aborted.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.client.GetFilePage(ctx, s.doc, offset, s.pageSize)
		if err != nil {
			return fmt.Errorf("%w: offset %d: %w", common.ErrBackendFetch, offset, err)
		}

		got := uint64(len(page))
		last := offset+got >= s.end

		// a short page is legal only at the end of the document
		if !last && got < pageSize {
			return fmt.Errorf("%w: short page at offset %d: got %d bytes", common.ErrBackendFetch, offset, got)
		}

		lo := uint64(0)
		if first {
			lo = s.start - offset
			first = false
		}
		hi := got
		if last {
			hi = s.end - offset
		}
		if hi < lo {
			return fmt.Errorf("%w: page at offset %d does not reach window start", common.ErrBackendFetch, offset)
		}

		if _, err := w.Write(page[lo:hi]); err != nil {
			return fmt.Errorf("write sink: %w", err)
		}
		s.log.Debug(ctx, "page streamed", "offset", offset, "bytes", hi-lo)

		if last {
			return nil
		}
		offset += pageSize
	}
}
