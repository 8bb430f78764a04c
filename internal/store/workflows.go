package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// CreateWorkflow persists a workflow and its steps in one transaction.
func (s *Store) CreateWorkflow(ctx context.Context, w *WorkflowRecord, steps []*StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB("begin create workflow", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, status, created_by, current_step, context, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.Status, w.CreatedBy, w.CurrentStep,
		mustJSON(w.Context), w.CreatedAt.UTC().Format(time.RFC3339),
		timeToDB(w.StartedAt), timeToDB(w.CompletedAt))
	if err != nil {
		return wrapDB("insert workflow", err)
	}

	for _, st := range steps {
		deps, _ := json.Marshal(st.Deps)
		if st.Deps == nil {
			deps = []byte("[]")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, workflow_id, name, action, params, deps,
				timeout_secs, retry_count, retry_delay_secs, status, result, error, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, w.ID, st.Name, st.Action, mustJSON(st.Params), string(deps),
			st.TimeoutSecs, st.RetryCount, st.RetryDelay, st.Status,
			mustJSON(st.Result), st.Error, timeToDB(st.StartedAt), timeToDB(st.CompletedAt))
		if err != nil {
			return wrapDB("insert workflow step", err)
		}
	}
	return wrapDB("commit create workflow", tx.Commit())
}

// GetWorkflow fetches a workflow and its steps.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, []*StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, created_by, current_step, context, created_at, started_at, completed_at
		FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row.Scan)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, action, params, deps, timeout_secs, retry_count,
			retry_delay_secs, status, result, error, started_at, completed_at
		FROM workflow_steps WHERE workflow_id = ?`, id)
	if err != nil {
		return nil, nil, wrapDB("get workflow steps", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		st, err := scanStep(rows.Scan)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, st)
	}
	return w, steps, wrapDB("get workflow steps", rows.Err())
}

// ListWorkflows returns workflows, optionally filtered by status, newest
// first.
func (s *Store) ListWorkflows(ctx context.Context, status string) ([]*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, description, status, created_by, current_step, context, created_at, started_at, completed_at
		FROM workflows`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDB("list workflows", err)
	}
	defer rows.Close()

	var out []*WorkflowRecord
	for rows.Next() {
		w, err := scanWorkflow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, wrapDB("list workflows", rows.Err())
}

// UpdateWorkflow persists mutable workflow fields.
func (s *Store) UpdateWorkflow(ctx context.Context, w *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE workflows
		SET status = ?, current_step = ?, context = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		w.Status, w.CurrentStep, mustJSON(w.Context),
		timeToDB(w.StartedAt), timeToDB(w.CompletedAt), w.ID)
	return wrapDB("update workflow", err)
}

// UpdateStep persists mutable step fields.
func (s *Store) UpdateStep(ctx context.Context, st *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_steps
		SET status = ?, result = ?, error = ?, started_at = ?, completed_at = ?
		WHERE workflow_id = ? AND id = ?`,
		st.Status, mustJSON(st.Result), st.Error,
		timeToDB(st.StartedAt), timeToDB(st.CompletedAt), st.WorkflowID, st.ID)
	return wrapDB("update workflow step", err)
}

func scanWorkflow(scan func(...any) error) (*WorkflowRecord, error) {
	var w WorkflowRecord
	var contextJSON, created string
	var started, completed sql.NullString
	err := scan(&w.ID, &w.Name, &w.Description, &w.Status, &w.CreatedBy,
		&w.CurrentStep, &contextJSON, &created, &started, &completed)
	if err != nil {
		return nil, wrapDB("scan workflow", err)
	}
	_ = json.Unmarshal([]byte(contextJSON), &w.Context)
	w.CreatedAt, _ = time.Parse(time.RFC3339, created)
	w.StartedAt = timeFromDB(started)
	w.CompletedAt = timeFromDB(completed)
	return &w, nil
}

func scanStep(scan func(...any) error) (*StepRecord, error) {
	var st StepRecord
	var params, deps, result string
	var started, completed sql.NullString
	err := scan(&st.ID, &st.WorkflowID, &st.Name, &st.Action, &params, &deps,
		&st.TimeoutSecs, &st.RetryCount, &st.RetryDelay, &st.Status, &result,
		&st.Error, &started, &completed)
	if err != nil {
		return nil, wrapDB("scan workflow step", err)
	}
	_ = json.Unmarshal([]byte(params), &st.Params)
	_ = json.Unmarshal([]byte(deps), &st.Deps)
	_ = json.Unmarshal([]byte(result), &st.Result)
	st.StartedAt = timeFromDB(started)
	st.CompletedAt = timeFromDB(completed)
	return &st, nil
}
