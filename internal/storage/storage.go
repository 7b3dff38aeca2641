// Package storage persists orchestration state in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/autopilot/internal/domain"
)

type Storage struct {
	db   *sql.DB
	path string
}

// Verify Storage implements domain.Store
var _ domain.Store = (*Storage)(nil)

func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "autopilot.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Storage{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflow_executions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_project ON workflow_executions(project_id, updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON workflow_executions(status);

	CREATE TABLE IF NOT EXISTS orchestrations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orchestrations_project ON orchestrations(project_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Execution records

func (s *Storage) SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	e.UpdatedAt = time.Now().UTC()
	record, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, project_id, status, updated_at, record_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			status = excluded.status,
			updated_at = excluded.updated_at,
			record_json = excluded.record_json
	`, e.ID, e.ProjectID, string(e.Status), e.UpdatedAt, record)
	return err
}

func (s *Storage) GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM workflow_executions WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var e domain.WorkflowExecution
	if err := json.Unmarshal([]byte(record), &e); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", id, err)
	}
	return &e, nil
}

func (s *Storage) ListExecutions(ctx context.Context, projectID string) ([]*domain.WorkflowExecution, error) {
	query := `SELECT record_json FROM workflow_executions ORDER BY updated_at DESC`
	args := []any{}
	if projectID != "" {
		query = `SELECT record_json FROM workflow_executions WHERE project_id = ? ORDER BY updated_at DESC`
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*domain.WorkflowExecution
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var e domain.WorkflowExecution
		if err := json.Unmarshal([]byte(record), &e); err != nil {
			return nil, fmt.Errorf("decode execution: %w", err)
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// Orchestration records

func (s *Storage) SaveOrchestration(ctx context.Context, o *domain.OrchestrationExecution) error {
	o.UpdatedAt = time.Now().UTC()
	record, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode orchestration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orchestrations (id, project_id, status, updated_at, record_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			status = excluded.status,
			updated_at = excluded.updated_at,
			record_json = excluded.record_json
	`, o.ID, o.ProjectID, string(o.Status), o.UpdatedAt, record)
	return err
}

func (s *Storage) GetOrchestration(ctx context.Context, id string) (*domain.OrchestrationExecution, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM orchestrations WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("orchestration %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var o domain.OrchestrationExecution
	if err := json.Unmarshal([]byte(record), &o); err != nil {
		return nil, fmt.Errorf("decode orchestration %s: %w", id, err)
	}
	return &o, nil
}

func (s *Storage) ListOrchestrations(ctx context.Context, projectID string) ([]*domain.OrchestrationExecution, error) {
	query := `SELECT record_json FROM orchestrations ORDER BY updated_at DESC`
	args := []any{}
	if projectID != "" {
		query = `SELECT record_json FROM orchestrations WHERE project_id = ? ORDER BY updated_at DESC`
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orchestrations []*domain.OrchestrationExecution
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var o domain.OrchestrationExecution
		if err := json.Unmarshal([]byte(record), &o); err != nil {
			return nil, fmt.Errorf("decode orchestration: %w", err)
		}
		orchestrations = append(orchestrations, &o)
	}
	return orchestrations, rows.Err()
}

// Projects

func (s *Storage) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, path = excluded.path
	`, p.ID, p.Name, p.Path, p.CreatedAt)
	return err
}

func (s *Storage) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}
