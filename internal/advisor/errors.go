package advisor

import (
	"errors"
	"fmt"
)

// Kind classifies why no move could be produced.
type Kind int

const (
	KindUnknown Kind = iota
	KindSpawn
	KindHandshake
	KindIO
	KindTimeout
	KindNoBestMove
	KindMalformedMove
	KindIllegalMove
	KindNoLegalMoves
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindHandshake:
		return "handshake"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindNoBestMove:
		return "no_bestmove"
	case KindMalformedMove:
		return "malformed_move"
	case KindIllegalMove:
		return "illegal_move"
	case KindNoLegalMoves:
		return "no_legal_moves"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind  Kind
	Token string
	Err   error
}

func (e *Error) Error() string {
	msg := "advisor: " + e.Kind.String()
	if e.Token != "" {
		msg += fmt.Sprintf(" (token %q)", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
