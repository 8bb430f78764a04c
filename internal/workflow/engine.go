// Package workflow executes persisted DAGs of steps against registered
// action handlers.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notegraph/notegraph/internal/bus"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/store"
)

// Workflow statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	// StatusPaused is reserved; no transition produces it yet.
	StatusPaused = "paused"
)

// Step statuses.
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Default step settings, applied when a spec leaves them zero.
const (
	DefaultStepTimeout = 300 * time.Second
	DefaultRetryCount  = 0
	DefaultRetryDelay  = 5 * time.Second
)

// Action handles one step. The returned map is stored as the step result;
// its "context" sub-map is merged into the workflow context.
type Action func(ctx context.Context, wf *store.WorkflowRecord, step *store.StepRecord) (map[string]any, error)

// StepSpec defines a step at workflow creation time.
type StepSpec struct {
	Name        string         `json:"name"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"parameters,omitempty"`
	Deps        []string       `json:"dependencies,omitempty"`
	TimeoutSecs float64        `json:"timeout,omitempty"`
	RetryCount  int            `json:"retry_count,omitempty"`
	RetryDelay  float64        `json:"retry_delay,omitempty"`
}

// Engine schedules and executes workflows.
type Engine struct {
	store *store.Store
	bus   *bus.Bus

	mu      sync.Mutex
	actions map[string]Action
	active  map[string]*execution
	wg      sync.WaitGroup
}

// execution tracks one in-flight workflow.
type execution struct {
	// cancel stops the scheduling loop only; running steps finish.
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a workflow engine. The bus may be nil, in which case the
// agent-backed built-in actions report a dependency failure when invoked.
func NewEngine(st *store.Store, b *bus.Bus) *Engine {
	e := &Engine{
		store:   st,
		bus:     b,
		actions: map[string]Action{},
		active:  map[string]*execution{},
	}
	e.registerBuiltins()
	return e
}

// Register binds an action name to its handler, replacing any previous
// binding.
func (e *Engine) Register(name string, fn Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions[name] = fn
}

// Create validates the step DAG and persists a pending workflow. Step
// dependencies may reference other steps by name or by id.
func (e *Engine) Create(ctx context.Context, name, description string, specs []StepSpec, createdBy string) (string, error) {
	if len(specs) == 0 {
		return "", ngerrors.InvalidInput("workflow needs at least one step")
	}
	if createdBy == "" {
		createdBy = "system"
	}

	wfID := uuid.NewString()
	idByName := make(map[string]string, len(specs))
	steps := make([]*store.StepRecord, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Action == "" {
			return "", ngerrors.InvalidInput("step name and action are required")
		}
		if _, dup := idByName[spec.Name]; dup {
			return "", ngerrors.InvalidInput("duplicate step name: " + spec.Name)
		}
		id := uuid.NewString()
		idByName[spec.Name] = id

		timeout := spec.TimeoutSecs
		if timeout <= 0 {
			timeout = DefaultStepTimeout.Seconds()
		}
		delay := spec.RetryDelay
		if delay <= 0 {
			delay = DefaultRetryDelay.Seconds()
		}
		steps = append(steps, &store.StepRecord{
			ID:          id,
			WorkflowID:  wfID,
			Name:        spec.Name,
			Action:      spec.Action,
			Params:      spec.Params,
			Deps:        spec.Deps,
			TimeoutSecs: timeout,
			RetryCount:  spec.RetryCount,
			RetryDelay:  delay,
			Status:      StepPending,
		})
	}

	// Resolve name references and validate the dependency graph.
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		known[s.ID] = true
	}
	for _, s := range steps {
		for i, dep := range s.Deps {
			if id, ok := idByName[dep]; ok {
				s.Deps[i] = id
			} else if !known[dep] {
				return "", ngerrors.InvalidInput(
					fmt.Sprintf("step %q depends on unknown step %q", s.Name, dep))
			}
		}
	}
	if err := checkAcyclic(steps); err != nil {
		return "", err
	}

	wf := &store.WorkflowRecord{
		ID:          wfID,
		Name:        name,
		Description: description,
		Status:      StatusPending,
		CreatedBy:   createdBy,
		Context:     map[string]any{},
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateWorkflow(ctx, wf, steps); err != nil {
		return "", err
	}
	slog.Info("workflow created",
		slog.String("workflow", wfID),
		slog.String("name", name),
		slog.Int("steps", len(steps)))
	return wfID, nil
}

// checkAcyclic rejects dependency cycles with a three-color DFS.
func checkAcyclic(steps []*store.StepRecord) error {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.Deps
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}
		color[id] = black
		return true
	}

	for _, s := range steps {
		if color[s.ID] == white && !visit(s.ID) {
			return ngerrors.InvalidInput("step dependencies form a cycle")
		}
	}
	return nil
}

// Start transitions a pending workflow to running and executes it in the
// background. Starting a non-pending workflow is a conflict and mutates
// nothing.
func (e *Engine) Start(ctx context.Context, id string) error {
	wf, steps, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status != StatusPending {
		return ngerrors.Conflict(
			fmt.Sprintf("workflow %s is %s, not pending", id, wf.Status))
	}

	now := time.Now().UTC()
	wf.Status = StatusRunning
	wf.StartedAt = &now
	if err := e.store.UpdateWorkflow(ctx, wf); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	exec := &execution{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	e.active[id] = exec
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(exec.done)
		e.run(loopCtx, wf, steps)
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
	}()

	slog.Info("workflow started", slog.String("workflow", id))
	return nil
}

// run is the scheduling loop: launch every runnable step concurrently, wait
// for the wave, repeat until the workflow reaches a terminal status.
func (e *Engine) run(loopCtx context.Context, wf *store.WorkflowRecord, steps []*store.StepRecord) {
	persist := func() {
		if err := e.store.UpdateWorkflow(context.Background(), wf); err != nil {
			slog.Error("workflow persist failed",
				slog.String("workflow", wf.ID), slog.String("error", err.Error()))
		}
	}

	for {
		if loopCtx.Err() != nil {
			e.finish(wf, StatusCancelled)
			persist()
			return
		}

		ready := readySteps(steps)
		if len(ready) == 0 {
			anyPending, anyFailed := false, false
			for _, s := range steps {
				switch s.Status {
				case StepPending:
					anyPending = true
				case StepFailed:
					anyFailed = true
				}
			}
			switch {
			case anyPending:
				// Remaining pending steps can never run: their deps failed
				// or form no runnable order. The workflow is stalled.
				e.finish(wf, StatusFailed)
			case anyFailed:
				e.finish(wf, StatusFailed)
			default:
				e.finish(wf, StatusCompleted)
			}
			persist()
			slog.Info("workflow finished",
				slog.String("workflow", wf.ID), slog.String("status", wf.Status))
			return
		}

		var wave sync.WaitGroup
		for _, step := range ready {
			wf.CurrentStep = step.ID
			wave.Add(1)
			go func(s *store.StepRecord) {
				defer wave.Done()
				e.executeStep(wf, s)
			}(step)
		}
		wave.Wait()
		persist()
	}
}

// finish stamps a terminal status.
func (e *Engine) finish(wf *store.WorkflowRecord, status string) {
	now := time.Now().UTC()
	wf.Status = status
	wf.CompletedAt = &now
}

// readySteps returns pending steps whose dependencies are all completed.
func readySteps(steps []*store.StepRecord) []*store.StepRecord {
	byID := make(map[string]*store.StepRecord, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	var ready []*store.StepRecord
	for _, s := range steps {
		if s.Status != StepPending {
			continue
		}
		ok := true
		for _, dep := range s.Deps {
			d := byID[dep]
			if d == nil || d.Status != StepCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

// executeStep runs one step under its deadline, retrying per the configured
// budget. Only the final status is persisted.
func (e *Engine) executeStep(wf *store.WorkflowRecord, step *store.StepRecord) {
	e.mu.Lock()
	action, ok := e.actions[step.Action]
	e.mu.Unlock()

	now := time.Now().UTC()
	step.Status = StepRunning
	step.StartedAt = &now
	if err := e.store.UpdateStep(context.Background(), step); err != nil {
		slog.Error("step persist failed", slog.String("error", err.Error()))
	}

	var result map[string]any
	var lastErr error
	if !ok {
		lastErr = ngerrors.InvalidInput("no handler for action " + step.Action)
	} else {
		attempts := step.RetryCount + 1
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(step.RetryDelay * float64(time.Second)))
			}
			result, lastErr = e.runAttempt(action, wf, step)
			if lastErr == nil {
				break
			}
			slog.Warn("step attempt failed",
				slog.String("workflow", wf.ID),
				slog.String("step", step.Name),
				slog.Int("attempt", attempt+1),
				slog.String("error", lastErr.Error()))
		}
	}

	done := time.Now().UTC()
	step.CompletedAt = &done
	if lastErr != nil {
		step.Status = StepFailed
		step.Error = lastErr.Error()
	} else {
		step.Status = StepCompleted
		step.Result = result
		if sub, ok := result["context"].(map[string]any); ok {
			e.mu.Lock()
			if wf.Context == nil {
				wf.Context = map[string]any{}
			}
			for k, v := range sub {
				wf.Context[k] = v
			}
			e.mu.Unlock()
		}
	}
	if err := e.store.UpdateStep(context.Background(), step); err != nil {
		slog.Error("step persist failed", slog.String("error", err.Error()))
	}
}

// runAttempt invokes the action under the step deadline.
func (e *Engine) runAttempt(action Action, wf *store.WorkflowRecord, step *store.StepRecord) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(step.TimeoutSecs*float64(time.Second)))
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		r, err := action(ctx, wf, step)
		ch <- outcome{result: r, err: err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ngerrors.Timeout(
			fmt.Sprintf("step timed out after %g seconds", step.TimeoutSecs))
	}
}

// Cancel requests cooperative cancellation: running steps finish, no new
// steps launch.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	exec, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return ngerrors.New(ngerrors.KindNotFound, "workflow "+id+" is not running")
	}
	exec.cancel()
	slog.Info("workflow cancellation requested", slog.String("workflow", id))
	return nil
}

// Wait blocks until the workflow's scheduling loop exits or the context is
// done.
func (e *Engine) Wait(ctx context.Context, id string) error {
	e.mu.Lock()
	exec, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for all in-flight workflows.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for _, exec := range e.active {
		exec.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// StepStatus is the step view inside a status report.
type StepStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Action string `json:"action"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status is a progress report for one workflow.
type Status struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Progress    float64        `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Steps       []StepStatus   `json:"steps"`
}

// GetStatus reports a workflow's progress. Progress is the completed share
// of all steps, as a percentage.
func (e *Engine) GetStatus(ctx context.Context, id string) (*Status, error) {
	wf, steps, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	completed := 0
	views := make([]StepStatus, 0, len(steps))
	for _, s := range steps {
		if s.Status == StepCompleted {
			completed++
		}
		views = append(views, StepStatus{
			ID: s.ID, Name: s.Name, Action: s.Action, Status: s.Status, Error: s.Error,
		})
	}
	progress := 0.0
	if len(steps) > 0 {
		progress = float64(completed) / float64(len(steps)) * 100
	}

	return &Status{
		ID:          wf.ID,
		Name:        wf.Name,
		Status:      wf.Status,
		Progress:    progress,
		CurrentStep: wf.CurrentStep,
		Context:     wf.Context,
		CreatedAt:   wf.CreatedAt,
		StartedAt:   wf.StartedAt,
		CompletedAt: wf.CompletedAt,
		Steps:       views,
	}, nil
}

// List returns workflows, optionally filtered by status.
func (e *Engine) List(ctx context.Context, status string) ([]*store.WorkflowRecord, error) {
	return e.store.ListWorkflows(ctx, status)
}
