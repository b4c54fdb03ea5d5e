package openingbook

import (
	"sync"

	"github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

type Opening struct {
	Code  string
	Title string
}

func book() *opening.BookECO {
	ecoOnce.Do(func() {
		ecoBook = opening.NewBookECO()
	})
	return ecoBook
}

// Identify returns the most specific ECO opening the moves have followed.
func Identify(moves []*chess.Move) (Opening, bool) {
	if len(moves) == 0 {
		return Opening{}, false
	}
	o := book().Find(moves)
	if o == nil {
		return Opening{}, false
	}
	return Opening{Code: o.Code(), Title: o.Title()}, true
}
