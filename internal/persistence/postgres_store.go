package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresRunStore struct {
	db *sql.DB
}

// Ensure PostgresRunStore implements RunStore.
var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema in the given
// database and returns a new PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_state TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_workflow_status ON runs(workflow_name, status);
	`)
	return err
}

func (s *PostgresRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_name, status, current_state, started_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		run.ID,
		run.Workflow.Name,
		string(run.Status),
		string(run.CurrentState),
		run.StartedAt.UTC(),
		string(data),
	)
	return err
}

func (s *PostgresRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET workflow_name = $1,
		    status        = $2,
		    current_state = $3,
		    data          = $4
		WHERE id = $5
	`,
		run.Workflow.Name,
		string(run.Status),
		string(run.CurrentState),
		string(data),
		run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRun(data)
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	query := `SELECT data FROM runs`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		clauses = append(clauses, fmt.Sprintf("workflow_name = $%d", len(args)+1))
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.WorkflowRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PostgresEventStore stores execution events in PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

var _ EventStore = (*PostgresEventStore)(nil)

func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			workflow_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, workflow_name, state, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.RunID, at.UTC(), string(ev.Type), ev.Workflow, string(ev.State), ev.Details)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, workflow_name, state, details
		FROM run_events
		WHERE run_id = $1
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ExecutionEvent
	for rows.Next() {
		var ev api.ExecutionEvent
		var typ, state string
		if err := rows.Scan(&ev.RunID, &ev.At, &typ, &ev.Workflow, &state, &ev.Details); err != nil {
			return nil, err
		}
		ev.Type = api.EventType(typ)
		ev.State = api.StateID(state)
		out = append(out, ev)
	}
	return out, rows.Err()
}
