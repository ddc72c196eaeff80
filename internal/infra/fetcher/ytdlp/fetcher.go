package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"custodia/internal/domain"
)

// Fetcher shells out to yt-dlp to download source media. The tool prints a
// single JSON metadata object when given --print-json, which carries the
// source id, title, and container extension we key storage on.
type Fetcher struct {
	bin     string
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(bin string) *Fetcher {
	if strings.TrimSpace(bin) == "" {
		bin = "yt-dlp"
	}
	return &Fetcher{bin: bin, command: exec.CommandContext}
}

type metadata struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Ext   string `json:"ext"`
}

func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (domain.FetchedMedia, error) {
	if f == nil {
		return domain.FetchedMedia{}, errors.New("fetcher is nil")
	}
	if strings.TrimSpace(url) == "" {
		return domain.FetchedMedia{}, errors.New("url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return domain.FetchedMedia{}, errors.New("dest dir is required")
	}

	outputTemplate := filepath.Join(destDir, "%(id)s.%(ext)s")
	cmd := f.command(ctx, f.bin,
		"--no-progress",
		"--no-playlist",
		"--print-json",
		"-o", outputTemplate,
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.FetchedMedia{}, fmt.Errorf("%w: fetch %s: %w", domain.ErrTransient, url, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domain.FetchedMedia{}, fmt.Errorf("%w: fetch %s: %s", domain.ErrTransient, url, firstLine(stderr.String()))
		}
		// Binary missing or not executable; retrying will not help.
		return domain.FetchedMedia{}, fmt.Errorf("%w: fetch %s: %w", domain.ErrFatal, url, err)
	}

	var meta metadata
	if err := json.Unmarshal(lastJSONLine(stdout.Bytes()), &meta); err != nil {
		return domain.FetchedMedia{}, fmt.Errorf("%w: parse fetch metadata for %s: %w", domain.ErrFatal, url, err)
	}
	if meta.ID == "" || meta.Ext == "" {
		return domain.FetchedMedia{}, fmt.Errorf("%w: incomplete fetch metadata for %s", domain.ErrFatal, url)
	}

	return domain.FetchedMedia{
		SourceID: meta.ID,
		Title:    meta.Title,
		Ext:      meta.Ext,
		Path:     filepath.Join(destDir, meta.ID+"."+meta.Ext),
	}, nil
}

// lastJSONLine handles warnings yt-dlp occasionally prints before the
// metadata object.
func lastJSONLine(output []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 && line[0] == '{' {
			return line
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
