// Package render draws a chess board as SVG and rasterizes it to PNG.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"

	"github.com/corentings/chess/v2"
)

const DefaultSize = 450

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	highlightFill   = color.RGBA{255, 228, 120, 255}
	marginFill      = color.RGBA{33, 33, 33, 255}
	coordinateColor = color.RGBA{229, 229, 229, 255}
	whitePieceFill  = color.RGBA{255, 255, 255, 255}
	blackPieceFill  = color.RGBA{20, 20, 20, 255}
	pieceStroke     = color.RGBA{0, 0, 0, 255}
	blackPieceTrim  = color.RGBA{230, 230, 230, 255}
)

// Highlight marks the squares of the last move.
type Highlight struct {
	From chess.Square
	To   chess.Square
}

// HighlightMove builds a Highlight from a move, or nil.
func HighlightMove(mv *chess.Move) *Highlight {
	if mv == nil {
		return nil
	}
	return &Highlight{From: mv.S1(), To: mv.S2()}
}

type Options struct {
	// Size is the edge length in pixels. Zero means DefaultSize.
	Size int
	// Flipped draws the board from black's side.
	Flipped     bool
	Coordinates bool
	Highlight   *Highlight
}

type geometry struct {
	size   int
	margin float64
	square float64
}

func layout(opts Options) geometry {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	g := geometry{size: size}
	if opts.Coordinates {
		g.margin = float64(size) / 30
	}
	g.square = (float64(size) - 2*g.margin) / 8
	return g
}

// origin returns the top-left corner of sq.
func (g geometry) origin(sq chess.Square, flipped bool) (float64, float64) {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if flipped {
		col = 7 - col
		row = 7 - row
	}
	return g.margin + float64(col)*g.square, g.margin + float64(row)*g.square
}

// SVG returns the board as a standalone SVG document.
func SVG(board *chess.Board, opts Options) ([]byte, error) {
	return buildSVG(board, opts, true)
}

func buildSVG(board *chess.Board, opts Options, withText bool) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	g := layout(opts)
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="%d" height="%d" viewBox="0 0 %d %d">`, g.size, g.size, g.size, g.size)
	if opts.Coordinates {
		fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, g.size, g.size, hex(marginFill))
	}

	squares := board.SquareMap()
	for i := 0; i < 64; i++ {
		sq := chess.Square(i)
		x, y := g.origin(sq, opts.Flipped)
		fill := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			fill = darkSquare
		}
		writeRect(&b, x, y, g.square, g.square, hex(fill), "")
		if h := opts.Highlight; h != nil && (sq == h.From || sq == h.To) {
			writeRect(&b, x, y, g.square, g.square, hex(highlightFill), ` fill-opacity="0.55"`)
		}
		if piece, ok := squares[sq]; ok && piece != chess.NoPiece {
			writePiece(&b, piece, x, y, g.square)
		}
	}

	if opts.Coordinates && withText {
		writeCoordinates(&b, g, opts.Flipped)
	}
	b.WriteString(`</svg>`)
	return b.Bytes(), nil
}

func writeCoordinates(b *bytes.Buffer, g geometry, flipped bool) {
	fontSize := g.margin * 0.8
	for i := 0; i < 8; i++ {
		file := chess.File(i)
		rank := chess.Rank(i)
		fx, _ := g.origin(chess.NewSquare(file, chess.Rank1), flipped)
		_, ry := g.origin(chess.NewSquare(chess.FileA, rank), flipped)
		cx := fx + g.square/2
		cy := ry + g.square/2
		for _, ty := range []float64{g.margin * 0.75, float64(g.size) - g.margin*0.25} {
			fmt.Fprintf(b, `<text x="%s" y="%s" font-size="%s" font-family="sans-serif" text-anchor="middle" fill="%s">%s</text>`,
				num(cx), num(ty), num(fontSize), hex(coordinateColor), file.String())
		}
		for _, tx := range []float64{g.margin / 2, float64(g.size) - g.margin/2} {
			fmt.Fprintf(b, `<text x="%s" y="%s" font-size="%s" font-family="sans-serif" text-anchor="middle" fill="%s">%s</text>`,
				num(tx), num(cy+fontSize/3), num(fontSize), hex(coordinateColor), rank.String())
		}
	}
}

func writeRect(b *bytes.Buffer, x, y, w, h float64, fill, extra string) {
	fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"%s/>`, num(x), num(y), num(w), num(h), fill, extra)
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
