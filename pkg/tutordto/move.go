package tutordto

// Recommendation is the engine's suggestion for the position before the user's move.
type Recommendation struct {
	MoveUCI     string `json:"move_uci"`
	MoveSAN     string `json:"move_san"`
	EvalCP      int    `json:"eval_cp"`
	Explanation string `json:"explanation,omitempty"`
	ClipID      string `json:"clip_id,omitempty"`
}

type MoveSummary struct {
	State          *State          `json:"state"`
	PlayerSAN      string          `json:"player_san"`
	PlayerUCI      string          `json:"player_uci"`
	ReplySAN       string          `json:"reply_san,omitempty"`
	ReplyUCI       string          `json:"reply_uci,omitempty"`
	ReplyFallback  bool            `json:"reply_fallback,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Messages       []string        `json:"messages,omitempty"`
	Finished       bool            `json:"finished"`
}

// Event is pushed over the game websocket.
type Event struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Summary   *MoveSummary `json:"summary,omitempty"`
	State     *State       `json:"state,omitempty"`
	ClipID    string       `json:"clip_id,omitempty"`
	Text      string       `json:"text,omitempty"`
}

const (
	EventMoveApplied = "move_applied"
	EventStateReset  = "state_reset"
	EventClipReady   = "clip_ready"
	EventGameOver    = "game_over"
	EventSnapshot    = "snapshot"
)
