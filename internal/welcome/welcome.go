// Package welcome provides the onboarding image: a configured PNG or SVG file,
// or the embedded banner with a caption strip.
package welcome

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

//go:embed assets/banner.svg
var bannerSVG []byte

const (
	Width  = 640
	Height = 360

	DefaultCaption = "Super Quiz Divertido!"

	captionHeight = 72
	captionScale  = 3
)

var (
	captionPanel = color.NRGBA{R: 28, G: 31, B: 46, A: 235}
	captionText  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Media renders once and serves the cached bytes afterwards.
type Media struct {
	path    string
	caption string

	once sync.Once
	png  []byte
	err  error
}

// New returns media backed by path (.png or .svg) or, when path is empty, the embedded banner.
func New(path, caption string) *Media {
	if strings.TrimSpace(caption) == "" {
		caption = DefaultCaption
	}
	return &Media{path: strings.TrimSpace(path), caption: caption}
}

func (m *Media) PNG(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.once.Do(func() { m.png, m.err = m.load() })
	return m.png, m.err
}

func (m *Media) load() ([]byte, error) {
	if m.path == "" {
		return RenderBanner(bannerSVG, m.caption)
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read welcome image: %w", err)
	}
	switch strings.ToLower(filepath.Ext(m.path)) {
	case ".svg":
		return RenderBanner(data, m.caption)
	default:
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("welcome image %s is not a png: %w", m.path, err)
		}
		return data, nil
	}
}

// RenderBanner rasterizes svg to Width x Height and draws caption on a strip at the bottom.
func RenderBanner(svg []byte, caption string) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(svg)))
	if err != nil {
		return nil, fmt.Errorf("parse banner svg: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return nil, errors.New("banner svg has no viewBox")
	}
	icon.SetTarget(0, 0, Width, Height)

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	scanner := rasterx.NewScannerGV(Width, Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(Width, Height, scanner), 1.0)

	if caption = strings.TrimSpace(caption); caption != "" {
		strip := image.Rect(0, Height-captionHeight, Width, Height)
		xdraw.Draw(img, strip, image.NewUniform(captionPanel), image.Point{}, xdraw.Over)
		drawCaption(img, strip, caption)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawCaption renders text with the 7x13 bitmap face on a small canvas and scales it
// up, since basicfont has a single size.
func drawCaption(dst *image.RGBA, rect image.Rectangle, text string) {
	face := basicfont.Face7x13
	maxWidth := rect.Dx()/captionScale - 8
	text = truncateWithEllipsis(face, text, maxWidth)

	drawer := &font.Drawer{Face: face}
	w := drawer.MeasureString(text).Ceil()
	h := face.Metrics().Height.Ceil()
	if w <= 0 || h <= 0 {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	drawer.Dst = small
	drawer.Src = image.NewUniform(captionText)
	drawer.Dot = fixed.P(0, face.Metrics().Ascent.Ceil())
	drawer.DrawString(text)

	sw, sh := w*captionScale, h*captionScale
	x := rect.Min.X + (rect.Dx()-sw)/2
	y := rect.Min.Y + (rect.Dy()-sh)/2
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x, y, x+sw, y+sh), small, small.Bounds(), xdraw.Over, nil)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return "..."
}
