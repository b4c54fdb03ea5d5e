package render

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"github.com/corentings/chess/v2"
)

func TestSVGDrawsPiecesAndCoordinates(t *testing.T) {
	game := chess.NewGame()
	doc, err := SVG(game.Position().Board(), Options{Coordinates: true})
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	s := string(doc)
	if !strings.HasPrefix(s, "<svg") || !strings.Contains(s, `width="450"`) {
		t.Fatalf("unexpected svg header: %.80s", s)
	}
	// 64 squares plus the margin background.
	if got := strings.Count(s, "<rect"); got != 65 {
		t.Fatalf("rect count = %d, want 65", got)
	}
	if got := strings.Count(s, "<text"); got != 32 {
		t.Fatalf("coordinate label count = %d, want 32", got)
	}
	if !strings.Contains(s, ">a</text>") || !strings.Contains(s, ">8</text>") {
		t.Fatalf("missing coordinate labels")
	}
}

func TestSVGHighlightsLastMove(t *testing.T) {
	game := chess.NewGame()
	if err := game.PushNotationMove("e4", chess.AlgebraicNotation{}, nil); err != nil {
		t.Fatalf("push: %v", err)
	}
	moves := game.Moves()
	doc, err := SVG(game.Position().Board(), Options{Highlight: HighlightMove(moves[len(moves)-1])})
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	if got := strings.Count(string(doc), `fill-opacity="0.55"`); got != 2 {
		t.Fatalf("highlight overlays = %d, want 2", got)
	}
}

func TestSVGFlipMovesOrigin(t *testing.T) {
	g := layout(Options{})
	x, y := g.origin(chess.A1, false)
	if x != 0 || y != g.square*7 {
		t.Fatalf("a1 origin = %v,%v", x, y)
	}
	x, y = g.origin(chess.A1, true)
	if x != g.square*7 || y != 0 {
		t.Fatalf("flipped a1 origin = %v,%v", x, y)
	}
}

func TestPNGRasterizes(t *testing.T) {
	game := chess.NewGame()
	data, err := PNG(context.Background(), game.Position().Board(), Options{Size: 240, Coordinates: true})
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 240 || b.Dy() != 240 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

func TestNilBoard(t *testing.T) {
	if _, err := SVG(nil, Options{}); err == nil {
		t.Fatalf("expected error for nil board")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PNG(ctx, chess.NewGame().Position().Board(), Options{}); err == nil {
		t.Fatalf("expected context error")
	}
}
