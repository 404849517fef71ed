// Package tracker records the stages of a single redirect attempt.
package tracker

import (
	"log/slog"
	"time"
)

// Stages of the redirect pipeline.
const (
	StageRateLimit    = "rate_limit"
	StageParseRequest = "parse_request"
	StageLinkLookup   = "link_lookup"
	StageURLNormalize = "url_normalize"
	StageURLValidate  = "url_validate"
	StageRespond      = "respond"
)

// Step is one completed or failed stage.
type Step struct {
	Stage    string
	At       time.Time
	Duration time.Duration
	Err      string
}

// Tracker is a per-request step log. It is not safe for concurrent use.
type Tracker struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	steps []Step
	drop  string
}

// New starts a tracker. A nil clock uses time.Now.
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Tracker{now: now, start: start, last: start}
}

// Mark records the completion of stage.
func (t *Tracker) Mark(stage string) {
	t.record(stage, "")
}

// Fail records stage as the point where the attempt dropped off.
// Only the first failure is kept as the drop-off stage.
func (t *Tracker) Fail(stage string, err error) {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	t.record(stage, msg)
	if t.drop == "" {
		t.drop = stage
	}
}

func (t *Tracker) record(stage, errMsg string) {
	at := t.now()
	t.steps = append(t.steps, Step{
		Stage:    stage,
		At:       at,
		Duration: at.Sub(t.last),
		Err:      errMsg,
	})
	t.last = at
}

// Elapsed is the time since the tracker started.
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Steps returns a copy of the recorded steps.
func (t *Tracker) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Summary is the estimated performance of an attempt.
type Summary struct {
	Total           time.Duration
	Steps           int
	SlowestStage    string
	SlowestDuration time.Duration
	DropOffStage    string
}

// Completed reports whether the attempt reached the end without failing.
func (s Summary) Completed() bool {
	return s.DropOffStage == ""
}

// LogValue renders the summary as a slog group.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("total_ms", s.Total.Milliseconds()),
		slog.Int("steps", s.Steps),
	}
	if s.SlowestStage != "" {
		attrs = append(attrs,
			slog.String("slowest_stage", s.SlowestStage),
			slog.Int64("slowest_ms", s.SlowestDuration.Milliseconds()),
		)
	}
	if s.DropOffStage != "" {
		attrs = append(attrs, slog.String("drop_off", s.DropOffStage))
	}
	return slog.GroupValue(attrs...)
}

// Summary computes the summary from the steps recorded so far.
func (t *Tracker) Summary() Summary {
	s := Summary{
		Total:        t.last.Sub(t.start),
		Steps:        len(t.steps),
		DropOffStage: t.drop,
	}
	for _, step := range t.steps {
		if s.SlowestStage == "" || step.Duration > s.SlowestDuration {
			s.SlowestStage = step.Stage
			s.SlowestDuration = step.Duration
		}
	}
	return s
}
