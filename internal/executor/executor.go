// File: internal/executor/executor.go
// Description: The agent's run loop. One goal becomes one run: analyze the
// page, adopt a plan, execute it strictly sequentially, then derive the run
// artifacts. The executor owns the RunState aggregate; observers receive
// deep-copied snapshots after every transition.

package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/artifacts"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// ErrRunInProgress is returned when a goal arrives while another run is
// active. The agent is a singleton executor: concurrent goals are rejected,
// never queued.
var ErrRunInProgress = errors.New("a run is already in progress")

// ErrElementNotFound marks a step whose target could not be located by any
// strategy, selector or coordinates.
var ErrElementNotFound = errors.New("element not found")

// Observer receives a state snapshot after every transition. Callbacks run on
// the run goroutine and must not block.
type Observer func(schemas.RunState)

// Agent executes goals against a page. All mutation of the run state goes
// through the mutex; reads hand out snapshots.
type Agent struct {
	cfg      config.ExecutorConfig
	driver   schemas.Driver
	oracle   schemas.Oracle
	resolver schemas.Resolver
	speaker  schemas.Speaker
	logger   *zap.Logger

	mu        sync.Mutex
	state     schemas.RunState
	running   bool
	observers []Observer
}

// New assembles the agent. speaker may be nil; voice is then skipped.
func New(cfg config.ExecutorConfig, driver schemas.Driver, oracle schemas.Oracle, resolver schemas.Resolver, speaker schemas.Speaker, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		driver:   driver,
		oracle:   oracle,
		resolver: resolver,
		speaker:  speaker,
		logger:   logger.Named("executor"),
		state:    schemas.RunState{Phase: schemas.PhaseIdle},
	}
}

// Subscribe registers an observer for state snapshots.
func (a *Agent) Subscribe(obs Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, obs)
}

// State returns a snapshot of the current run state.
func (a *Agent) State() schemas.RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Snapshot()
}

// Run executes one goal end to end and returns the final state. A second
// call while a run is in flight fails immediately with ErrRunInProgress.
func (a *Agent) Run(ctx context.Context, goal, targetURL string) (final schemas.RunState, err error) {
	a.mu.Lock()
	if a.running {
		snapshot := a.state.Snapshot()
		a.mu.Unlock()
		return snapshot, ErrRunInProgress
	}
	a.running = true
	a.state = schemas.RunState{Phase: schemas.PhaseIdle, Goal: goal}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Run panicked", zap.Any("panic", r))
			a.failRun(fmt.Errorf("internal error: %v", r))
			final = a.State()
			err = nil
		}
	}()

	a.say(ctx, fmt.Sprintf("Starting on the goal: %s", goal))

	plan, err := a.analyze(ctx, goal, targetURL)
	if err != nil {
		a.failRun(err)
		return a.State(), err
	}

	a.execute(ctx, plan)
	a.finalize(ctx)

	final = a.State()
	if final.Succeeded() {
		a.say(ctx, "Goal completed successfully.")
	} else {
		a.say(ctx, "The run finished with problems; check the summary.")
	}
	return final, nil
}

// analyze navigates to the target, captures the page, and asks the oracle for
// a plan. The adopted plan is a deep copy; the oracle's output is never
// mutated in place.
func (a *Agent) analyze(ctx context.Context, goal, targetURL string) ([]schemas.Action, error) {
	a.transition(func(s *schemas.RunState) {
		s.Phase = schemas.PhaseAnalyzing
	})

	if targetURL != "" {
		if err := a.driver.Navigate(ctx, targetURL); err != nil {
			return nil, fmt.Errorf("navigation to %s failed: %w", targetURL, err)
		}
		a.appendLog(schemas.LogInfo, "navigate", targetURL)
	}

	// A missing screenshot is not fatal; the oracle falls back to its
	// deterministic path without one.
	screenshot, err := a.driver.Screenshot(ctx)
	if err != nil {
		a.logger.Warn("Screenshot for analysis failed", zap.Error(err))
		screenshot = nil
	}

	analysis, err := a.oracle.Analyze(ctx, screenshot, goal)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	a.transition(func(s *schemas.RunState) {
		s.Phase = schemas.PhasePlanning
		s.Actions = schemas.ClonePlan(analysis.Actions)
		s.StepIndex = 0
	})
	a.appendLog(schemas.LogInfo, "plan", analysis.Summary)
	a.say(ctx, analysis.Summary)

	return a.State().Actions, nil
}

// execute walks the plan strictly in order. Each step reaches a terminal
// status before the next one starts; a failed step either aborts the run or,
// under the continue-on-error policy, yields a fixed recovery pause.
func (a *Agent) execute(ctx context.Context, plan []schemas.Action) {
	a.transition(func(s *schemas.RunState) {
		s.Phase = schemas.PhaseExecuting
	})

	for i := range plan {
		if err := ctx.Err(); err != nil {
			a.appendLog(schemas.LogInfo, "run", "cancelled before step "+strconv.Itoa(i+1))
			a.failRun(err)
			return
		}

		a.transition(func(s *schemas.RunState) {
			s.StepIndex = i
			s.Actions[i].Status = schemas.StatusExecuting
		})

		stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
		action := plan[i]
		locator, err := a.performStep(stepCtx, &action)
		cancel()

		if err != nil {
			a.transition(func(s *schemas.RunState) {
				s.Actions[i].Status = schemas.StatusFailed
				s.Actions[i].Reason = err.Error()
			})
			a.appendLog(schemas.LogError, action.Description, err.Error())
			a.logger.Warn("Step failed",
				zap.String("action", action.ID),
				zap.Error(err),
			)

			if !a.cfg.ContinueOnError {
				a.failRun(fmt.Errorf("step %d failed: %w", i+1, err))
				return
			}
			if !a.recoveryPause(ctx) {
				a.failRun(ctx.Err())
				return
			}
			continue
		}

		a.transition(func(s *schemas.RunState) {
			s.Actions[i].Status = schemas.StatusCompleted
			if locator != "" && s.Actions[i].Target != nil {
				s.Actions[i].Target.Locator = locator
			}
		})
		a.appendLog(schemas.LogSuccess, action.Description, "")
	}
}

// performStep maps one action onto driver operations. It returns the locator
// that served the step, if any, so the replay script can embed it.
func (a *Agent) performStep(ctx context.Context, action *schemas.Action) (string, error) {
	switch action.Kind {
	case schemas.ActionClick:
		locator, err := a.resolveTarget(ctx, action)
		if err != nil {
			return "", err
		}
		if locator != "" {
			return locator, a.driver.Click(ctx, locator)
		}
		// Selector strategies came up empty; click the center of the
		// planner's bounding box, scaled to the live viewport.
		if action.Target == nil {
			return "", ErrElementNotFound
		}
		width, height, err := a.driver.Viewport(ctx)
		if err != nil {
			return "", fmt.Errorf("viewport lookup for coordinate click failed: %w", err)
		}
		x, y := action.Target.Box.CenterPixels(width, height)
		a.logger.Debug("Falling back to coordinate click",
			zap.String("action", action.ID),
			zap.Float64("x", x),
			zap.Float64("y", y),
		)
		return "", a.driver.ClickAt(ctx, x, y)

	case schemas.ActionType, schemas.ActionSelect:
		locator, err := a.resolveTarget(ctx, action)
		if err != nil {
			return "", err
		}
		if locator == "" {
			// Typing needs a focused element; coordinates are not enough.
			return "", ErrElementNotFound
		}
		return locator, a.driver.Fill(ctx, locator, action.Value)

	case schemas.ActionWait:
		return "", a.driver.Wait(ctx, waitMillis(action.Value))

	case schemas.ActionNavigate:
		if strings.TrimSpace(action.Value) == "" {
			return "", fmt.Errorf("navigate action %s has no URL", action.ID)
		}
		return "", a.driver.Navigate(ctx, action.Value)

	case schemas.ActionScroll:
		return "", a.driver.Scroll(ctx, 0, scrollDelta(action.Value))

	default:
		return "", fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

// resolveTarget runs the locator resolver for targeted actions. A nil target
// resolves to no locator without error; the caller decides whether that is
// fatal for the kind.
func (a *Agent) resolveTarget(ctx context.Context, action *schemas.Action) (string, error) {
	if action.Target == nil {
		return "", nil
	}
	if action.Target.Locator != "" {
		return action.Target.Locator, nil
	}
	locator, err := a.resolver.Resolve(ctx, action.Target)
	if err != nil {
		return "", fmt.Errorf("locator resolution failed: %w", err)
	}
	return locator, nil
}

// recoveryPause sleeps the configured delay after a failed step. It reports
// false when the run context ended during the pause.
func (a *Agent) recoveryPause(ctx context.Context) bool {
	if a.cfg.RecoveryDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(a.cfg.RecoveryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// finalize derives the run artifacts and closes the run out. Artifact
// generation is pure; only the final screenshot touches the browser, and its
// failure is logged, not fatal.
func (a *Agent) finalize(ctx context.Context) {
	a.mu.Lock()
	if a.state.Phase == schemas.PhaseError {
		// An aborted run still gets its textual artifacts.
		goal, actions, log := a.state.Goal, schemas.ClonePlan(a.state.Actions), append([]schemas.LogEntry(nil), a.state.Log...)
		a.mu.Unlock()
		a.transition(func(s *schemas.RunState) {
			s.Artifacts = artifacts.Generate(goal, actions, log)
		})
		return
	}
	goal, actions, log := a.state.Goal, schemas.ClonePlan(a.state.Actions), append([]schemas.LogEntry(nil), a.state.Log...)
	a.mu.Unlock()

	generated := artifacts.Generate(goal, actions, log)

	if shot, err := a.driver.Screenshot(ctx); err != nil {
		a.logger.Warn("Final screenshot failed", zap.Error(err))
	} else {
		generated = append(generated, schemas.Artifact{
			Kind:     schemas.ArtifactScreenshot,
			Filename: "final.png",
			Binary:   shot,
		})
	}

	a.transition(func(s *schemas.RunState) {
		s.Artifacts = generated
		s.Phase = schemas.PhaseCompleted
	})
}

// failRun moves the run into the error phase. Any step still marked
// executing is closed out as failed so no action is left non-terminal.
func (a *Agent) failRun(err error) {
	msg := "run failed"
	if err != nil {
		msg = err.Error()
	}
	a.transition(func(s *schemas.RunState) {
		s.Phase = schemas.PhaseError
		s.Err = msg
		for i := range s.Actions {
			if s.Actions[i].Status == schemas.StatusExecuting {
				s.Actions[i].Status = schemas.StatusFailed
				s.Actions[i].Reason = msg
			}
		}
	})
}

// transition applies a mutation under the lock and notifies observers with a
// snapshot taken after the mutation. Observers run outside the lock.
func (a *Agent) transition(mutate func(*schemas.RunState)) {
	a.mu.Lock()
	mutate(&a.state)
	snapshot := a.state.Snapshot()
	observers := a.observers
	a.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

// appendLog adds one entry to the append-only execution log.
func (a *Agent) appendLog(status schemas.LogStatus, action, details string) {
	a.transition(func(s *schemas.RunState) {
		s.Log = append(s.Log, schemas.LogEntry{
			Timestamp: time.Now().UTC(),
			Action:    action,
			Status:    status,
			Details:   details,
		})
	})
}

// say forwards text to the speaker, best effort.
func (a *Agent) say(ctx context.Context, text string) {
	if a.speaker == nil || text == "" {
		return
	}
	if err := a.speaker.Say(ctx, text); err != nil {
		a.logger.Debug("Voice output failed", zap.Error(err))
	}
}

// waitMillis parses an action value as milliseconds, defaulting to one second.
func waitMillis(value string) int {
	if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ms > 0 {
		return ms
	}
	return 1000
}

// scrollDelta parses an action value as a vertical pixel delta, defaulting to
// most of one viewport height.
func scrollDelta(value string) float64 {
	if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && d != 0 {
		return d
	}
	return 600
}
