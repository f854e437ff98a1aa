package models

import "time"

// Mode is the operational stance inferred for a message.
type Mode string

const (
	ModeExecute Mode = "execute"
	ModeAssist  Mode = "assist"
	ModeAnalyze Mode = "analyze"
	ModeBuild   Mode = "build"
	ModeMaintain Mode = "maintain"
)

// Genre is the speech-act inferred for a message.
type Genre string

const (
	GenreDirect Genre = "direct"
	GenreInform Genre = "inform"
	GenreCommit Genre = "commit"
	GenreDecide Genre = "decide"
	GenreExpress Genre = "express"
)

// Signal is the 5-tuple classification of an inbound message, plus weight.
type Signal struct {
	Mode      Mode      `json:"mode"`
	Genre     Genre     `json:"genre"`
	Type      string    `json:"type"`
	Format    string    `json:"format"`
	Weight    float64   `json:"weight"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// ClampWeight enforces the [0,1] invariant on Weight.
func (s *Signal) ClampWeight() {
	switch {
	case s.Weight < 0:
		s.Weight = 0
	case s.Weight > 1:
		s.Weight = 1
	}
}
