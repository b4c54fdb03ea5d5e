package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PNG rasterizes the SVG board. Coordinate labels are drawn with a bitmap
// face since the rasterizer has no text support.
func PNG(ctx context.Context, board *chess.Board, opts Options) ([]byte, error) {
	doc, err := buildSVG(board, opts, false)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	g := layout(opts)
	icon.SetTarget(0, 0, float64(g.size), float64(g.size))

	img := image.NewRGBA(image.Rect(0, 0, g.size, g.size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(g.size, g.size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(g.size, g.size, scanner), 1.0)

	if opts.Coordinates {
		drawLabels(img, g, opts.Flipped)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawLabels(img *image.RGBA, g geometry, flipped bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(coordinateColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	margin := int(g.margin)
	for i := 0; i < 8; i++ {
		fx, _ := g.origin(chess.NewSquare(chess.File(i), chess.Rank1), flipped)
		_, ry := g.origin(chess.NewSquare(chess.FileA, chess.Rank(i)), flipped)
		file := chess.File(i).String()
		rank := chess.Rank(i).String()
		cx := int(fx + g.square/2)
		cy := int(ry+g.square/2) + ascent/2
		centered(drawer, file, cx, (margin+ascent)/2)
		centered(drawer, file, cx, g.size-margin+(margin+ascent)/2-1)
		centered(drawer, rank, margin/2, cy)
		centered(drawer, rank, g.size-margin/2, cy)
	}
}

func centered(d *font.Drawer, text string, centerX, baseline int) {
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}
