// Package render turns a finished dialog into ticket files: a JPEG drawn on a
// template, or an MP4 produced by overlaying that JPEG on a base animation.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/ticketbot/internal/dialog"
)

// Modes accepted by New.
const (
	ModeImage = "image"
	ModeVideo = "video"
)

// Renderer produces artifacts for a ticket. Implementations are safe for
// concurrent use.
type Renderer interface {
	Render(ctx context.Context, t dialog.Ticket) (Artifact, error)
}

// Artifact references the files produced by one render. The caller owns them
// and must call Cleanup once they have been dispatched.
type Artifact struct {
	// Primary is the file sent to the user.
	Primary string
	// Files lists every file created, Primary included.
	Files []string
}

// Cleanup removes all artifact files. Missing files are ignored.
func (a Artifact) Cleanup() error {
	var errs []error
	for _, f := range a.Files {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Error is a render failure. Its message is shown to the user.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Stage
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func fail(stage string, err error) error {
	return &Error{Stage: stage, Err: err}
}

// Options configures New.
type Options struct {
	Mode        string
	Template    string
	FontRegular string
	FontMedium  string
	BaseVideo   string
	CropTopPx   int
	OutputDir   string
	Timezone    string
	FFmpeg      string
}

// New builds the renderer selected by opts.Mode.
func New(opts Options) (Renderer, error) {
	loc, err := loadLocation(opts.Timezone)
	if err != nil {
		return nil, err
	}
	img, err := NewImageRenderer(ImageOptions{
		Template:    opts.Template,
		FontRegular: opts.FontRegular,
		FontMedium:  opts.FontMedium,
		OutputDir:   opts.OutputDir,
		Location:    loc,
	})
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", ModeImage:
		return img, nil
	case ModeVideo:
		return NewVideoRenderer(img, VideoOptions{
			BaseVideo: opts.BaseVideo,
			CropTopPx: opts.CropTopPx,
			FFmpeg:    opts.FFmpeg,
			OutputDir: opts.OutputDir,
		})
	default:
		return nil, fmt.Errorf("render: unknown mode %q", opts.Mode)
	}
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = "Europe/Minsk"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("render: load timezone %q: %w", name, err)
	}
	return loc, nil
}

// uniqueName returns "ticket_<12 hex>.<ext>".
func uniqueName(ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ticket_" + id[:12] + "." + strings.TrimPrefix(ext, ".")
}

func outputDir(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return os.TempDir()
	}
	return dir
}
