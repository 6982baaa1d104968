package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gwprov/internal/logging"
	"gwprov/internal/portdata"
	"gwprov/internal/provision"
)

// Run is one provisioning run as recorded in history.
type Run struct {
	ID         string
	Workflow   string
	Gateway    string
	StartPort  int
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or if the process died
	Aborted    bool
	AbortedAt  portdata.Key
	Summary    provision.Summary
}

// BeginRun records a new run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, workflow, gateway string, startPort int) (string, error) {
	id := uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, workflow, gateway, start_port, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, workflow, gateway, startPort, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run finished. Its tallies are counted from the stored
// outcome rows so the run summary always agrees with them.
func (s *Store) FinishRun(ctx context.Context, runID string, res provision.Result) error {
	var abortedAt sql.NullString
	if res.Aborted {
		abortedAt = sql.NullString{String: string(res.AbortedAt), Valid: true}
	}
	r, err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, aborted = ?, aborted_at = ?,
		   success = (SELECT COUNT(*) FROM outcomes WHERE run_id = runs.id AND kind = ?),
		   failed  = (SELECT COUNT(*) FROM outcomes WHERE run_id = runs.id AND kind = ?),
		   skipped = (SELECT COUNT(*) FROM outcomes WHERE run_id = runs.id AND kind = ?)
		 WHERE id = ?`,
		formatTime(s.now()), res.Aborted, abortedAt,
		string(provision.KindSuccess), string(provision.KindFailed), string(provision.KindSkipped), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordOutcome stores one port outcome under runID.
func (s *Store) RecordOutcome(ctx context.Context, runID string, o provision.Outcome) error {
	at := o.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO outcomes (run_id, port, port_index, kind, stage, detail, email, url, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(o.Port), o.Port.Index(), string(o.Kind), o.Stage, o.Detail, o.Email, o.URL, formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", o.Port, err)
	}
	return nil
}

// Recorder binds the store to one run for the provisioning engine.
func (s *Store) Recorder(runID string) provision.Recorder {
	return runRecorder{store: s, runID: runID}
}

type runRecorder struct {
	store *Store
	runID string
}

func (r runRecorder) RecordOutcome(ctx context.Context, o provision.Outcome) error {
	return r.store.RecordOutcome(ctx, r.runID, o)
}

const runColumns = `id, workflow, gateway, start_port, started_at, finished_at, aborted, aborted_at, success, failed, skipped`

func scanRun(row interface{ Scan(...interface{}) error }) (Run, error) {
	var (
		r                 Run
		started, finished sql.NullString
		abortedAt         sql.NullString
	)
	err := row.Scan(&r.ID, &r.Workflow, &r.Gateway, &r.StartPort, &started, &finished,
		&r.Aborted, &abortedAt, &r.Summary.Success, &r.Summary.Failed, &r.Summary.Skipped)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.AbortedAt = portdata.Key(abortedAt.String)
	return r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRun returns the newest run for a workflow and gateway.
func (s *Store) LastRun(ctx context.Context, workflow, gateway string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE workflow = ? AND gateway = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		workflow, gateway)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("failed to query last run: %w", err)
	}
	return r, true, nil
}

// Outcomes returns a run's outcomes in port order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]provision.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT o.port, o.kind, o.stage, o.detail, o.email, o.url, o.recorded_at, r.workflow, r.gateway
		 FROM outcomes o JOIN runs r ON r.id = o.run_id
		 WHERE o.run_id = ? ORDER BY o.port_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []provision.Outcome
	for rows.Next() {
		var (
			o                             provision.Outcome
			port, kind                    string
			stage, detail, email, url, at sql.NullString
		)
		if err := rows.Scan(&port, &kind, &stage, &detail, &email, &url, &at, &o.Workflow, &o.Gateway); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Port = portdata.Key(port)
		o.Kind = provision.Kind(kind)
		o.Stage, o.Detail, o.Email, o.URL = stage.String, detail.String, email.String, url.String
		o.At = parseTime(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return r, true, nil
}

// SuggestStart proposes where the next run for workflow on gateway should
// begin, based on the newest such run. See ResumePort.
func (s *Store) SuggestStart(ctx context.Context, workflow, gateway string) (port int, ok bool, err error) {
	last, found, err := s.LastRun(ctx, workflow, gateway)
	if err != nil || !found {
		return 0, false, err
	}
	return s.resumePort(ctx, last)
}

// ResumePort returns the port a re-run of runID should start from: its lowest
// failed port or the port it aborted on, whichever comes first. ok is false
// when the run needs no follow-up or does not exist.
func (s *Store) ResumePort(ctx context.Context, runID string) (port int, ok bool, err error) {
	run, found, err := s.GetRun(ctx, runID)
	if err != nil || !found {
		return 0, false, err
	}
	return s.resumePort(ctx, run)
}

func (s *Store) resumePort(ctx context.Context, run Run) (port int, ok bool, err error) {
	outcomes, err := s.Outcomes(ctx, run.ID)
	if err != nil {
		return 0, false, err
	}
	for _, o := range outcomes {
		if o.Kind == provision.KindFailed {
			port = o.Port.Index()
			break
		}
	}
	if run.Aborted {
		if i := run.AbortedAt.Index(); i > 0 && (port == 0 || i < port) {
			port = i
		}
	}
	return port, port > 0, nil
}

// SaveInventory stores every record of an inventory report.
func (s *Store) SaveInventory(ctx context.Context, runID string, scrapedAt time.Time, records []portdata.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO inventory (run_id, gateway, port, imei, iccid, mdn, carrier, status, missing, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := formatTime(scrapedAt)
	for _, r := range records {
		_, err := stmt.ExecContext(ctx, runID, r.Gateway, string(r.Port), r.IMEI, r.ICCID, r.MDN,
			r.Carrier, string(r.Status), strings.Join(r.Missing, ","), ts)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.Label(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inventory: %w", err)
	}
	logging.Store("saved %d inventory records for run %s", len(records), runID)
	return nil
}

// InventoryCounts returns the latest status tallies per gateway.
func (s *Store) InventoryCounts(ctx context.Context, runID string) (map[string]map[portdata.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT gateway, status, COUNT(*) FROM inventory WHERE run_id = ? GROUP BY gateway, status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	out := map[string]map[portdata.Status]int{}
	for rows.Next() {
		var gw, status string
		var n int
		if err := rows.Scan(&gw, &status, &n); err != nil {
			return nil, err
		}
		if out[gw] == nil {
			out[gw] = map[portdata.Status]int{}
		}
		out[gw][portdata.Status(status)] = n
	}
	return out, rows.Err()
}
