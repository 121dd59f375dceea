package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/foreman/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers from the recorder and readers
	// from the CLI without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		project_dir TEXT NOT NULL,
		input_file TEXT,
		input TEXT NOT NULL,
		planner TEXT NOT NULL,
		worker TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		pid INTEGER
	);

	CREATE TABLE IF NOT EXISTS phases (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		phase TEXT NOT NULL,
		detail TEXT,
		at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	result, err := s.db.Exec(
		`INSERT INTO runs (started_at, project_dir, input_file, input, planner, worker, status, pid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), run.ProjectDir, run.InputFile, run.Input, run.Planner, run.Worker, run.Status, run.PID,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

const runColumns = `id, started_at, finished_at, project_dir, input_file, input, planner, worker, status, error, pid`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var finishedAt sql.NullTime
	var inputFile, errMsg sql.NullString
	var pid sql.NullInt64

	err := row.Scan(
		&run.ID, &run.StartedAt, &finishedAt, &run.ProjectDir, &inputFile,
		&run.Input, &run.Planner, &run.Worker, &run.Status, &errMsg, &pid,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.InputFile = inputFile.String
	run.Error = errMsg.String
	run.PID = int(pid.Int64)
	return &run, nil
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return run, err
}

// FinishRun records the final status of a run.
func (s *Storage) FinishRun(id int64, status models.RunStatus, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), status, errMsg, id,
	)
	return err
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// AppendPhase adds the next phase record of a run.
func (s *Storage) AppendPhase(runID int64, phase, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO phases (run_id, seq, phase, detail, at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM phases WHERE run_id = ?), ?, ?, ?)`,
		runID, runID, phase, detail, time.Now().UTC(),
	)
	return err
}

func (s *Storage) GetPhases(runID int64) ([]*models.PhaseRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, seq, phase, detail, at FROM phases WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []*models.PhaseRecord
	for rows.Next() {
		var p models.PhaseRecord
		var detail sql.NullString
		if err := rows.Scan(&p.RunID, &p.Seq, &p.Phase, &detail, &p.At); err != nil {
			return nil, err
		}
		p.Detail = detail.String
		phases = append(phases, &p)
	}

	return phases, rows.Err()
}

func (s *Storage) DeleteRun(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM phases WHERE run_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return tx.Commit()
}

// FormatTimeAgo renders t relative to now for listings.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}
