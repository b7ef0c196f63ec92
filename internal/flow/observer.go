package flow

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// TurnPath says how a turn was resolved.
type TurnPath string

const (
	PathScripted TurnPath = "scripted"
	PathLLM      TurnPath = "llm"
)

// TurnEvent describes one finished turn.
type TurnEvent struct {
	StudyID string
	Path    TurnPath
	Branch  string
	Actions int
	Elapsed time.Duration
	Err     error
}

// Observer receives turn outcomes and background failures.
type Observer interface {
	OnTurn(ev TurnEvent)
	OnStatusUpdateFailed(studyID string, err error)
}

// ObserverStats is a snapshot of LogObserver's counters.
type ObserverStats struct {
	Turns                int64
	ScriptedTurns        int64
	LLMTurns             int64
	FailedTurns          int64
	StatusUpdateFailures int64
}

// LogObserver logs every event through slog and counts them.
type LogObserver struct {
	turns          atomic.Int64
	scripted       atomic.Int64
	llm            atomic.Int64
	failed         atomic.Int64
	statusFailures atomic.Int64
}

// NewLogObserver creates a LogObserver with zeroed counters.
func NewLogObserver() *LogObserver {
	return &LogObserver{}
}

func (o *LogObserver) OnTurn(ev TurnEvent) {
	o.turns.Add(1)
	switch ev.Path {
	case PathScripted:
		o.scripted.Add(1)
	case PathLLM:
		o.llm.Add(1)
	}
	if ev.Err != nil {
		o.failed.Add(1)
		slog.Error("LogObserver.OnTurn: turn failed", "studyID", ev.StudyID, "path", ev.Path, "branch", ev.Branch, "elapsed", ev.Elapsed, "error", ev.Err)
		return
	}
	slog.Info("LogObserver.OnTurn: turn completed", "studyID", ev.StudyID, "path", ev.Path, "branch", ev.Branch, "actions", ev.Actions, "elapsed", ev.Elapsed)
}

func (o *LogObserver) OnStatusUpdateFailed(studyID string, err error) {
	o.statusFailures.Add(1)
	slog.Error("LogObserver.OnStatusUpdateFailed: could not mark study active", "studyID", studyID, "error", err)
}

// Stats returns the current counters.
func (o *LogObserver) Stats() ObserverStats {
	return ObserverStats{
		Turns:                o.turns.Load(),
		ScriptedTurns:        o.scripted.Load(),
		LLMTurns:             o.llm.Load(),
		FailedTurns:          o.failed.Load(),
		StatusUpdateFailures: o.statusFailures.Load(),
	}
}
