package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/m3rciful/ticketbot/core/logger"
	"github.com/m3rciful/ticketbot/internal/dialog"
)

// VideoOptions configures a VideoRenderer.
type VideoOptions struct {
	BaseVideo string
	// CropTopPx rows are cut from the top of the ticket image, which is then
	// placed the same distance down so the rest lines up with the animation.
	CropTopPx int
	FFmpeg    string
	OutputDir string
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// VideoRenderer overlays a rendered ticket image onto a base animation with ffmpeg.
type VideoRenderer struct {
	image     *ImageRenderer
	baseVideo string
	cropTop   int
	ffmpeg    string
	outDir    string
	run       commandRunner
	log       *slog.Logger
}

// NewVideoRenderer checks that the base animation exists and resolves ffmpeg.
func NewVideoRenderer(img *ImageRenderer, opts VideoOptions) (*VideoRenderer, error) {
	if img == nil {
		return nil, errors.New("render: nil image renderer")
	}
	if opts.BaseVideo == "" {
		return nil, errors.New("render: base video path is empty")
	}
	if _, err := os.Stat(opts.BaseVideo); err != nil {
		return nil, fmt.Errorf("render: base video: %w", err)
	}
	bin := opts.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("render: ffmpeg not found: %w", err)
	}
	return &VideoRenderer{
		image:     img,
		baseVideo: opts.BaseVideo,
		cropTop:   max(0, opts.CropTopPx),
		ffmpeg:    resolved,
		outDir:    outputDir(opts.OutputDir),
		run:       runCommand,
		log:       logger.Component("render"),
	}, nil
}

// Render draws the ticket image and encodes the video. The artifact holds
// both files with the video as primary.
func (r *VideoRenderer) Render(ctx context.Context, t dialog.Ticket) (Artifact, error) {
	img, err := r.image.Render(ctx, t)
	if err != nil {
		return Artifact{}, err
	}

	out := filepath.Join(r.outDir, uniqueName("mp4"))
	art := Artifact{Primary: out, Files: append(img.Files, out)}

	start := time.Now()
	err = r.run(ctx, r.ffmpeg, ffmpegArgs(r.baseVideo, img.Primary, out, r.cropTop)...)
	logger.LogEvent(ctx, r.log, levelFor(err), "render.video",
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		_ = art.Cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Artifact{}, fail("video", ctxErr)
		}
		return Artifact{}, fail("video", err)
	}
	return art, nil
}

// ffmpegArgs scales the overlay to the base frame, crops crop rows from its
// top and places it crop rows down. Audio is dropped.
func ffmpegArgs(base, overlay, out string, crop int) []string {
	filter := fmt.Sprintf("[1:v][0:v]scale2ref[ov][base];[ov]crop=iw:ih-%d:0:%d[ovc];[base][ovc]overlay=0:%d", crop, crop, crop)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", base,
		"-i", overlay,
		"-filter_complex", filter,
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-threads", "2",
		out,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return logger.SanitizeLimit(s, 200)
}
