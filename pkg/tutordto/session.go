package tutordto

import "time"

type State struct {
	ID         string    `json:"id"`
	FEN        string    `json:"fen"`
	MovesUCI   []string  `json:"moves_uci"`
	MovesSAN   []string  `json:"moves_san"`
	Turn       string    `json:"turn"`
	Outcome    string    `json:"outcome"`
	Method     string    `json:"method,omitempty"`
	Finished   bool      `json:"finished"`
	LegalMoves []string  `json:"legal_moves"`
	LastMove   string    `json:"last_move,omitempty"`
	ECO        string    `json:"eco,omitempty"`
	Opening    string    `json:"opening,omitempty"`
	GameID     int64     `json:"game_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Features reports which optional collaborators are usable.
type Features struct {
	Engine bool `json:"engine"`
	Coach  bool `json:"coach"`
	// CoachStyle is the prompt style ("position" or "detailed") when Coach is on.
	CoachStyle string            `json:"coach_style,omitempty"`
	Speech     bool              `json:"speech"`
	Issues     map[string]string `json:"issues,omitempty"`
}
