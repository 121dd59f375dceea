package models

import "time"

// PhaseRecord is one phase transition of a run.
type PhaseRecord struct {
	RunID  int64
	Seq    int
	Phase  string
	Detail string
	At     time.Time
}
