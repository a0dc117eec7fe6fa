// Package cli implements the chanfile command line: uploading local files
// into a channel and downloading (optionally ranged) files described by a
// part manifest.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dkravets/chanfile/internal/config"
	"github.com/dkravets/chanfile/internal/logging"
	"github.com/dkravets/chanfile/internal/remote"
	"github.com/dkravets/chanfile/internal/remote/s3remote"
)

type App struct {
	cfg    *config.Config
	log    logging.Logger
	client remote.Client
	out    io.Writer
}

// NewApp wires the S3-backed remote client from config. An empty S3
// password triggers an interactive prompt.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	password := cfg.S3Password
	if password == "" {
		pw, err := GetPassword(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}

	client, err := s3remote.New(ctx, s3remote.Options{
		User:           cfg.S3User,
		Password:       password,
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		BaseEndpoint:   cfg.S3BaseEndpoint,
		MaxUploadParts: cfg.MaxUploadParts,
	}, log)
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, log: log, client: client, out: os.Stdout}, nil
}

// Run dispatches the subcommand. args excludes the program name but still
// contains configuration flags, which FilterArgs-based parsing has already
// consumed; the first non-flag argument selects the command.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd, rest := firstPositional(args)

	switch cmd {
	case "upload":
		if len(rest) < 1 {
			return fmt.Errorf("usage: chanfile upload <file>")
		}
		return a.Upload(ctx, rest[0])

	case "download":
		if len(rest) < 2 {
			return fmt.Errorf("usage: chanfile download <manifest> <out> [-r start-end]")
		}
		return a.Download(ctx, rest[0], rest[1], rangeArg(args))

	case "help", "":
		fmt.Fprintln(a.out, "Commands:")
		fmt.Fprintln(a.out, "  upload <file>                     upload a file, print its manifest")
		fmt.Fprintln(a.out, "  download <manifest> <out>         rebuild a file from its manifest")
		fmt.Fprintln(a.out, "    -r start-end                    deliver only the given byte range")
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// firstPositional returns the first argument that is not a flag or a flag
// value, plus everything positional after it.
func firstPositional(args []string) (string, []string) {
	var positionals []string
	skip := false
	for _, arg := range args {
		if skip {
			skip = false
			continue
		}
		if len(arg) > 0 && arg[0] == '-' {
			// all recognized flags take a value, either separate or -flag=value
			skip = !strings.Contains(arg, "=")
			continue
		}
		positionals = append(positionals, arg)
	}
	if len(positionals) == 0 {
		return "", nil
	}
	return positionals[0], positionals[1:]
}

// rangeArg extracts the value of the -r flag, or "".
func rangeArg(args []string) string {
	for i, arg := range args {
		if arg == "-r" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
