package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/m3rciful/ticketbot/core/logger"
	"github.com/m3rciful/ticketbot/internal/dialog"
)

// Layout of the ticket template, in template pixels.
const (
	centerX      = 585
	headerY      = 506
	headerSize   = 54
	routeY       = 712
	routeSize    = 41
	leftX        = 98
	garageY      = 950
	regularSize  = 48
	underlineGap = 20
	underlineW   = 2
	dateY        = 1072
	timeRightX   = 1077
	jpegQuality  = 95
)

// ImageOptions configures an ImageRenderer.
type ImageOptions struct {
	Template string
	// Empty font paths fall back to the Go fonts, which have no Cyrillic
	// glyphs. Only tests rely on that.
	FontRegular string
	FontMedium  string
	OutputDir   string
	Location    *time.Location
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// ImageRenderer draws ticket fields onto a template image.
type ImageRenderer struct {
	template image.Image
	regular  *opentype.Font
	medium   *opentype.Font
	outDir   string
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewImageRenderer loads the template and fonts. Empty font paths fall back
// to the bundled Go fonts.
func NewImageRenderer(opts ImageOptions) (*ImageRenderer, error) {
	tpl, err := loadTemplate(opts.Template)
	if err != nil {
		return nil, err
	}
	regular, err := loadFont(opts.FontRegular, goregular.TTF)
	if err != nil {
		return nil, err
	}
	medium, err := loadFont(opts.FontMedium, gomedium.TTF)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		if loc, err = loadLocation(""); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ImageRenderer{
		template: tpl,
		regular:  regular,
		medium:   medium,
		outDir:   outputDir(opts.OutputDir),
		loc:      loc,
		now:      now,
		log:      logger.Component("render"),
	}, nil
}

func loadTemplate(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("render: template path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("render: open template: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("render: decode template %s: %w", path, err)
	}
	return img, nil
}

func loadFont(path string, fallback []byte) (*opentype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("render: read font: %w", err)
		}
		data = b
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("render: parse font %q: %w", path, err)
	}
	return fnt, nil
}

// Render writes a JPEG ticket and returns it as the primary artifact.
func (r *ImageRenderer) Render(ctx context.Context, t dialog.Ticket) (Artifact, error) {
	start := time.Now()
	path, err := r.renderImage(ctx, t)
	logger.LogEvent(ctx, r.log, levelFor(err), "render.image",
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Primary: path, Files: []string{path}}, nil
}

func (r *ImageRenderer) renderImage(ctx context.Context, t dialog.Ticket) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fail("image", err)
	}

	canvas := image.NewRGBA(r.template.Bounds())
	draw.Draw(canvas, canvas.Bounds(), r.template, r.template.Bounds().Min, draw.Src)

	faces, err := r.newFaces()
	if err != nil {
		return "", fail("font", err)
	}
	defer faces.close()

	now := r.now().In(r.loc)

	drawCentered(canvas, faces.header, t.TransportLabel+" №"+t.RouteNum, centerX, headerY)
	drawCentered(canvas, faces.route, t.Route, centerX, routeY)

	width := drawLeft(canvas, faces.regular, t.GarageNumber, leftX, garageY)
	ink, _ := font.BoundString(faces.regular, t.GarageNumber)
	underlineY := garageY + (ink.Max.Y - ink.Min.Y).Ceil() + underlineGap
	fillRect(canvas, image.Rect(leftX, underlineY, leftX+width, underlineY+underlineW))

	drawLeft(canvas, faces.regular, now.Format("02.01.2006"), leftX, dateY)
	timeText := now.Format("15:04:05")
	drawLeft(canvas, faces.regular, timeText, timeRightX-measure(faces.regular, timeText), dateY)

	if err := ctx.Err(); err != nil {
		return "", fail("image", err)
	}
	return r.save(canvas)
}

func (r *ImageRenderer) save(img image.Image) (string, error) {
	path := filepath.Join(r.outDir, uniqueName("jpg"))
	f, err := os.Create(path)
	if err != nil {
		return "", fail("save", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fail("encode", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fail("save", err)
	}
	return path, nil
}

type faceSet struct {
	header, route, regular font.Face
}

func (f faceSet) close() {
	for _, face := range []font.Face{f.header, f.route, f.regular} {
		if face != nil {
			_ = face.Close()
		}
	}
}

// newFaces builds per-render faces; opentype faces keep glyph caches that
// are not safe for concurrent use.
func (r *ImageRenderer) newFaces() (faceSet, error) {
	var (
		fs  faceSet
		err error
	)
	if fs.header, err = newFace(r.medium, headerSize); err != nil {
		return fs, err
	}
	if fs.route, err = newFace(r.medium, routeSize); err != nil {
		fs.close()
		return faceSet{}, err
	}
	if fs.regular, err = newFace(r.regular, regularSize); err != nil {
		fs.close()
		return faceSet{}, err
	}
	return fs, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawLeft draws s with its top-left corner at (x, top) and returns its width.
func drawLeft(dst draw.Image, face font.Face, s string, x, top int) int {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
	return measure(face, s)
}

func drawCentered(dst draw.Image, face font.Face, s string, cx, top int) {
	drawLeft(dst, face, s, cx-measure(face, s)/2, top)
}

func fillRect(dst draw.Image, r image.Rectangle) {
	draw.Draw(dst, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}
