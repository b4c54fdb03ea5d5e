package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// Piece outlines in unit coordinates of a square (0..1).
type shape struct {
	polygon [][2]float64
	circle  [3]float64 // cx, cy, r; r == 0 means no circle
}

func poly(pts ...float64) shape {
	s := shape{}
	for i := 0; i+1 < len(pts); i += 2 {
		s.polygon = append(s.polygon, [2]float64{pts[i], pts[i+1]})
	}
	return s
}

func disc(cx, cy, r float64) shape {
	return shape{circle: [3]float64{cx, cy, r}}
}

var base = poly(0.22, 0.86, 0.78, 0.86, 0.74, 0.78, 0.26, 0.78)

var glyphs = map[chess.PieceType][]shape{
	chess.Pawn: {
		base,
		poly(0.36, 0.78, 0.64, 0.78, 0.58, 0.5, 0.42, 0.5),
		disc(0.5, 0.38, 0.13),
	},
	chess.Rook: {
		base,
		poly(0.32, 0.78, 0.68, 0.78, 0.64, 0.36, 0.36, 0.36),
		poly(0.28, 0.36, 0.72, 0.36, 0.72, 0.18, 0.63, 0.18, 0.63, 0.26, 0.55, 0.26,
			0.55, 0.18, 0.45, 0.18, 0.45, 0.26, 0.37, 0.26, 0.37, 0.18, 0.28, 0.18),
	},
	chess.Knight: {
		base,
		poly(0.3, 0.78, 0.74, 0.78, 0.72, 0.42, 0.6, 0.2, 0.48, 0.16, 0.44, 0.24,
			0.24, 0.4, 0.26, 0.5, 0.44, 0.46, 0.3, 0.66),
	},
	chess.Bishop: {
		base,
		poly(0.38, 0.78, 0.62, 0.78, 0.6, 0.6, 0.4, 0.6),
		poly(0.5, 0.18, 0.66, 0.42, 0.6, 0.6, 0.4, 0.6, 0.34, 0.42),
		disc(0.5, 0.15, 0.05),
	},
	chess.Queen: {
		base,
		poly(0.26, 0.78, 0.74, 0.78, 0.82, 0.3, 0.64, 0.56, 0.5, 0.24, 0.36, 0.56, 0.18, 0.3),
		disc(0.18, 0.27, 0.05),
		disc(0.5, 0.21, 0.05),
		disc(0.82, 0.27, 0.05),
	},
	chess.King: {
		base,
		poly(0.26, 0.78, 0.74, 0.78, 0.8, 0.46, 0.62, 0.38, 0.38, 0.38, 0.2, 0.46),
		poly(0.46, 0.38, 0.54, 0.38, 0.54, 0.26, 0.62, 0.26, 0.62, 0.19, 0.54, 0.19,
			0.54, 0.11, 0.46, 0.11, 0.46, 0.19, 0.38, 0.19, 0.38, 0.26, 0.46, 0.26),
	},
}

func writePiece(b *bytes.Buffer, piece chess.Piece, x, y, size float64) {
	shapes, ok := glyphs[piece.Type()]
	if !ok {
		return
	}
	fill, stroke := whitePieceFill, pieceStroke
	if piece.Color() == chess.Black {
		fill, stroke = blackPieceFill, blackPieceTrim
	}
	width := num(size / 40)
	for _, s := range shapes {
		if s.circle[2] > 0 {
			fmt.Fprintf(b, `<circle cx="%s" cy="%s" r="%s" fill="%s" stroke="%s" stroke-width="%s"/>`,
				num(x+s.circle[0]*size), num(y+s.circle[1]*size), num(s.circle[2]*size),
				hex(fill), hex(stroke), width)
			continue
		}
		pts := make([]string, 0, len(s.polygon))
		for _, p := range s.polygon {
			pts = append(pts, num(x+p[0]*size)+","+num(y+p[1]*size))
		}
		fmt.Fprintf(b, `<polygon points="%s" fill="%s" stroke="%s" stroke-width="%s"/>`,
			strings.Join(pts, " "), hex(fill), hex(stroke), width)
	}
}
