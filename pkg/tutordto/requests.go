package tutordto

type PlayRequest struct {
	Move  string `json:"move"`
	Speak bool   `json:"speak,omitempty"`
}
