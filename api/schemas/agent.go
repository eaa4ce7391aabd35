package schemas

import (
	"time"
)

// -- Action Schemas --

// ActionKind defines the discrete operations the agent can perform on a page.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionSelect   ActionKind = "select"
	ActionWait     ActionKind = "wait"
	ActionNavigate ActionKind = "navigate"
	ActionScroll   ActionKind = "scroll"
)

// ActionStatus tracks an action through its lifecycle. Only the step executor
// transitions an action's status; the planner always creates actions pending.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusAnalyzing ActionStatus = "analyzing"
	StatusReady     ActionStatus = "ready"
	StatusExecuting ActionStatus = "executing"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Terminal reports whether the status is a final state for a step.
func (s ActionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BoundingBox locates an element as percentages of the captured viewport.
// All four values are expected to lie in [0, 100].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clamp normalizes the box into the [0,100] percentage space. Negative
// offsets and sizes collapse to zero, and a box extending past the viewport
// edge is shortened so that x+width <= 100 and y+height <= 100.
func (b BoundingBox) Clamp() BoundingBox {
	clampPct := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}
	out := BoundingBox{
		X:      clampPct(b.X),
		Y:      clampPct(b.Y),
		Width:  clampPct(b.Width),
		Height: clampPct(b.Height),
	}
	if out.X+out.Width > 100 {
		out.Width = 100 - out.X
	}
	if out.Y+out.Height > 100 {
		out.Height = 100 - out.Y
	}
	return out
}

// Center returns the midpoint of the box in percentage coordinates.
// A degenerate box (zero width or height) still yields a valid point.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// CenterPixels converts the percentage-space center to pixel coordinates for
// the given live viewport dimensions.
func (b BoundingBox) CenterPixels(viewportWidth, viewportHeight int64) (x, y float64) {
	cx, cy := b.Center()
	return cx / 100 * float64(viewportWidth), cy / 100 * float64(viewportHeight)
}

// UIElement describes a target element on the page as the planner saw it.
// Instances are immutable once attached to an Action.
type UIElement struct {
	ID        string      `json:"id"`
	Tag       string      `json:"tag"`
	Text      string      `json:"text"`
	Box       BoundingBox `json:"box"`
	Locator   string      `json:"locator,omitempty"`
	Clickable bool        `json:"clickable,omitempty"`
	Inputable bool        `json:"inputable,omitempty"`
}

// Action is one planned step. Order is unique within a plan and defines the
// execution sequence. Actions are never deleted; a new plan replaces the old
// one wholesale.
type Action struct {
	ID          string       `json:"id"`
	Kind        ActionKind   `json:"kind"`
	Target      *UIElement   `json:"target,omitempty"`
	Value       string       `json:"value,omitempty"`
	Description string       `json:"description"`
	Order       int          `json:"order"`
	Status      ActionStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
}

// Clone returns a deep copy of the action, including its target element.
func (a Action) Clone() Action {
	out := a
	if a.Target != nil {
		t := *a.Target
		out.Target = &t
	}
	return out
}

// ClonePlan deep-copies a whole plan.
func ClonePlan(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}
	return out
}

// -- Execution Log Schemas --

// LogStatus categorizes a log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
	LogInfo    LogStatus = "info"
)

// LogEntry is one record in the append-only execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Status    LogStatus `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// -- Artifact Schemas --

// ArtifactKind identifies a generated run artifact.
type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactScript     ArtifactKind = "script"
	ArtifactRunLog     ArtifactKind = "run-log"
	ArtifactSummary    ArtifactKind = "summary"
)

// Artifact is a persistable output derived from a completed run. Content is
// text except for screenshots, which carry raw image bytes.
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Content  string       `json:"content,omitempty"`
	Binary   []byte       `json:"-"`
	Filename string       `json:"filename,omitempty"`
}

// -- Run State Schemas --

// Phase is the coarse lifecycle of an agent session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseListening Phase = "listening"
	PhaseAnalyzing Phase = "analyzing"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// InFlight reports whether a run is currently active in this phase.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseListening, PhaseAnalyzing, PhasePlanning, PhaseExecuting:
		return true
	}
	return false
}

// RunState is the aggregate the UI layer renders: the single source of truth
// for one agent session. Observers receive deep-copied snapshots; every
// transition is a pure replacement of this aggregate.
type RunState struct {
	Phase     Phase      `json:"phase"`
	Goal      string     `json:"goal"`
	Actions   []Action   `json:"actions"`
	Log       []LogEntry `json:"log"`
	Artifacts []Artifact `json:"artifacts"`
	StepIndex int        `json:"step_index"`
	Err       string     `json:"error,omitempty"`
}

// Snapshot returns a deep copy safe to hand to observers.
func (s RunState) Snapshot() RunState {
	out := s
	out.Actions = ClonePlan(s.Actions)
	out.Log = append([]LogEntry(nil), s.Log...)
	out.Artifacts = append([]Artifact(nil), s.Artifacts...)
	return out
}

// Succeeded reports whether every action in the final plan completed.
// An empty plan counts as a successful (if vacuous) run.
func (s RunState) Succeeded() bool {
	if s.Phase != PhaseCompleted {
		return false
	}
	for _, a := range s.Actions {
		if a.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// -- Oracle Schemas --

// Analysis is the oracle's answer for one (screenshot, goal) pair: the
// elements it recognized, a human-readable summary, and the suggested plan.
type Analysis struct {
	Elements []UIElement `json:"elements"`
	Summary  string      `json:"summary"`
	Actions  []Action    `json:"actions"`
}
