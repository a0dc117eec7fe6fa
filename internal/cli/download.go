package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dkravets/chanfile/internal/common"
	"github.com/dkravets/chanfile/internal/filex"
	"github.com/dkravets/chanfile/internal/transfer"
	"github.com/dkravets/chanfile/internal/transfer/download"
)

// Download rebuilds the byte range described by rangeStr (whole file when
// empty) from the manifest at manifestPath into outPath.
func (a *App) Download(ctx context.Context, manifestPath, outPath, rangeStr string) error {
	mf, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	m, err := ReadManifest(mf)
	mf.Close()
	if err != nil {
		return err
	}

	total := m.TotalSize()

	out, err := filex.CreateWithDirs(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}

	if total == 0 {
		// nothing to stream; an empty upload still round-trips to an
		// empty file
		if rangeStr != "" {
			out.Close()
			return fmt.Errorf("%w: range %q of an empty file", common.ErrRangeOutOfBounds, rangeStr)
		}
		return out.Close()
	}

	start, end, err := parseRange(rangeStr, total)
	if err != nil {
		out.Close()
		return err
	}

	parts := m.FileParts(a.cfg.Channel)

	if !m.hasInline() {
		d := download.New("", parts, start, end, a.cfg.DownloadPageSize, a.log)
		if err := d.Execute(ctx, a.client, out); err != nil {
			return err
		}
	} else if err := a.downloadMixed(ctx, m, parts, start, end, out); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "wrote %s (bytes %d-%d of %d)\n", outPath, start, end, total)
	return nil
}

// downloadMixed serves a range over a manifest that contains inline parts:
// inline windows are written locally, remote parts stream through a
// per-part download session. Closes out on success.
func (a *App) downloadMixed(ctx context.Context, m *Manifest, parts []transfer.FilePart, start, end uint64, out io.WriteCloser) error {
	resolved, err := transfer.Resolve(parts, transfer.ByteRange{Start: start, End: end})
	if err != nil {
		out.Close()
		return err
	}

	for _, pr := range resolved {
		mp := m.Parts[pr.PartIndex]
		if mp.Inline != nil {
			if _, err := out.Write(mp.Inline[pr.StartOffset:pr.EndOffset]); err != nil {
				out.Close()
				return fmt.Errorf("part %d: %w", pr.PartIndex, err)
			}
			continue
		}

		// the part-local window maps onto a fresh single-part session
		d := download.New("", []transfer.FilePart{pr.Part},
			pr.StartOffset, pr.EndOffset-1, a.cfg.DownloadPageSize, a.log)
		if err := d.Execute(ctx, a.client, nopWriteCloser{out}); err != nil {
			out.Close()
			return fmt.Errorf("part %d: %w", pr.PartIndex, err)
		}
	}
	return out.Close()
}

func (m *Manifest) hasInline() bool {
	for _, p := range m.Parts {
		if p.Inline != nil {
			return true
		}
	}
	return false
}

// nopWriteCloser lets per-part download sessions share one sink without
// each session closing it.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// parseRange interprets "start-end" (inclusive, zero-based). An empty
// string selects the whole file; "start-" selects everything from start on.
func parseRange(s string, total uint64) (start, end uint64, err error) {
	if s == "" {
		return 0, total - 1, nil
	}

	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("bad range %q, want start-end", s)
	}

	start, err = strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start %q: %w", lo, err)
	}

	if hi == "" {
		end = total - 1
	} else {
		end, err = strconv.ParseUint(hi, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad range end %q: %w", hi, err)
		}
	}

	if end < start {
		return 0, 0, fmt.Errorf("bad range %q: end before start", s)
	}
	return start, end, nil
}
