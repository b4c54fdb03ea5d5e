package openingbook

import (
	"strings"
	"testing"

	"github.com/corentings/chess/v2"
)

func play(t *testing.T, sans ...string) []*chess.Move {
	t.Helper()
	game := chess.NewGame()
	for _, san := range sans {
		mv, err := chess.AlgebraicNotation{}.Decode(game.Position(), san)
		if err != nil {
			t.Fatalf("decode %s: %v", san, err)
		}
		if err := game.Move(mv, nil); err != nil {
			t.Fatalf("move %s: %v", san, err)
		}
	}
	return game.Moves()
}

func TestIdentify(t *testing.T) {
	cases := []struct {
		moves []string
		title string
	}{
		{[]string{"e4", "e5", "Nf3", "Nc6", "Bb5"}, "Ruy Lopez"},
		{[]string{"e4", "c5"}, "Sicilian"},
	}
	for _, tc := range cases {
		o, ok := Identify(play(t, tc.moves...))
		if !ok {
			t.Fatalf("%v: no opening", tc.moves)
		}
		if !strings.Contains(o.Title, tc.title) || o.Code == "" {
			t.Errorf("%v: got %+v, want title containing %q", tc.moves, o, tc.title)
		}
	}
}

func TestIdentifyEmpty(t *testing.T) {
	if _, ok := Identify(nil); ok {
		t.Fatal("empty move list should not match")
	}
}
