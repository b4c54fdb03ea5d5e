package tutordto

import "time"

type GameRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	Result          string    `json:"result"`
	ResultMethod    string    `json:"result_method"`
	MovesSAN        []string  `json:"moves_san"`
	PGN             string    `json:"pgn"`
	Recommendations int       `json:"recommendations"`
	FallbackReplies int       `json:"fallback_replies"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationMS      int64     `json:"duration_ms"`
}
