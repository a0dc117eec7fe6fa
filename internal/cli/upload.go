package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkravets/chanfile/internal/remote"
	"github.com/dkravets/chanfile/internal/transfer/upload"
)

// Upload streams a local file into the configured channel and writes the
// resulting part manifest next to it as <file>.chanfile.json.
func (a *App) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	filename := filepath.Base(path)

	u := upload.New(a.client, remote.ChannelRef(a.cfg.Channel), filename, upload.Params{
		PageSize:      a.cfg.UploadPageSize,
		MinBufferSize: a.cfg.MinBufferSize,
	}, a.log, upload.Events{
		PortionUploaded: func(p *upload.Portion) {
			fmt.Fprintf(a.out, "part %d done (%d bytes)\n", p.Index, p.Size)
		},
	})

	portions, err := u.Execute(ctx, f)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}

	manifest := ManifestFromLedger(filename, a.cfg.Channel, portions)

	manifestPath := path + ".chanfile.json"
	mf, err := os.Create(manifestPath)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer mf.Close()

	if err := WriteManifest(mf, manifest); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "uploaded %s (%d parts), manifest: %s\n", filename, len(portions), manifestPath)
	return nil
}
