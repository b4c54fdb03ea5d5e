package domain

import "time"

// TutorGame is a finished tutoring game as persisted by the repository.
type TutorGame struct {
	ID              int64
	SessionID       string
	Result          string
	ResultMethod    string
	MovesUCI        []string
	MovesSAN        []string
	PGN             string
	Recommendations int
	FallbackReplies int
	StartedAt       time.Time
	EndedAt         time.Time
	Duration        time.Duration
}
