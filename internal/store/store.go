package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	apperrors "dtpanel/internal/errors"
	"dtpanel/pkg/contracts"
	"dtpanel/pkg/contracts/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY, started_at DATETIME NOT NULL,
		panel_file TEXT NOT NULL, year_cutoff INTEGER NOT NULL,
		imputation TEXT NOT NULL, row_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_results (
		run_id TEXT NOT NULL, name TEXT NOT NULL, formula TEXT NOT NULL,
		status TEXT NOT NULL, error TEXT, n INTEGER, dropped INTEGER,
		df_resid INTEGER, r2 REAL, adj_r2 REAL, cov_type TEXT, absorbed TEXT,
		PRIMARY KEY(run_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS coefficients (
		run_id TEXT NOT NULL, model TEXT NOT NULL, position INTEGER NOT NULL,
		term TEXT NOT NULL, estimate REAL, std_err REAL, z REAL, p REAL,
		PRIMARY KEY(run_id, model, position)
	)`,
}

// Store persists regression runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open results database "+path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, apperrors.NewStorageError("failed to apply schema", err)
		}
	}

	s := &Store{db: db}
	version, err := s.SchemaVersion(ctx)
	if err == nil && version > contracts.StoreSchemaVersion {
		err = fmt.Errorf("schema version %d is newer than supported version %d", version, contracts.StoreSchemaVersion)
	}
	if err == nil && version < contracts.StoreSchemaVersion {
		_, err = db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", contracts.StoreSchemaVersion))
	}
	if err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("results database "+path, err)
	}
	return s, nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullable maps NaN to NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveRun writes a run with all of its model results in one transaction.
// Saving a run id twice replaces the earlier rows.
func (s *Store) SaveRun(ctx context.Context, run domain.RegressionRun) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"coefficients", "model_results"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", run.ID); err != nil {
			return apperrors.NewStorageError("failed to clear "+table, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, panel_file, year_cutoff, imputation, row_count) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.PanelFile, run.YearCutoff, run.Imputation, run.Rows); err != nil {
		return apperrors.NewStorageError("failed to insert run", err)
	}

	for _, m := range run.Models {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO model_results (run_id, name, formula, status, error, n, dropped, df_resid, r2, adj_r2, cov_type, absorbed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, m.Name, m.Formula, m.Status, m.Error, m.N, m.Dropped, m.DFResid,
			nullable(m.R2), nullable(m.AdjR2), m.CovType, m.Absorbed); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to insert model %s", m.Name), err)
		}
		for i, c := range m.Coefficients {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO coefficients (run_id, model, position, term, estimate, std_err, z, p) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, m.Name, i, c.Term, nullable(c.Estimate), nullable(c.StdErr), nullable(c.Z), nullable(c.P)); err != nil {
				return apperrors.NewStorageError(fmt.Sprintf("failed to insert coefficient %s.%s", m.Name, c.Term), err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit run", err)
	}
	return nil
}

// LoadRun reads a run back. Models keep their insertion order.
func (s *Store) LoadRun(ctx context.Context, id string) (*domain.RegressionRun, error) {
	run := &domain.RegressionRun{ID: id}
	var started string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at, panel_file, year_cutoff, imputation, row_count FROM runs WHERE id = ?`, id).
		Scan(&started, &run.PanelFile, &run.YearCutoff, &run.Imputation, &run.Rows)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewStorageError("run "+id+" not found", err)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load run "+id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, apperrors.NewStorageError("invalid started_at for run "+id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, formula, status, COALESCE(error, ''), n, dropped, df_resid, r2, adj_r2, COALESCE(cov_type, ''), COALESCE(absorbed, '')
		 FROM model_results WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load models", err)
	}
	for rows.Next() {
		var m domain.ModelResult
		var r2, adj sql.NullFloat64
		if err := rows.Scan(&m.Name, &m.Formula, &m.Status, &m.Error, &m.N, &m.Dropped, &m.DFResid, &r2, &adj, &m.CovType, &m.Absorbed); err != nil {
			rows.Close()
			return nil, apperrors.NewStorageError("failed to scan model", err)
		}
		m.R2, m.AdjR2 = fromNull(r2), fromNull(adj)
		run.Models = append(run.Models, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to load models", err)
	}

	for i := range run.Models {
		coefs, err := s.coefficients(ctx, id, run.Models[i].Name)
		if err != nil {
			return nil, err
		}
		run.Models[i].Coefficients = coefs
	}
	return run, nil
}

func (s *Store) coefficients(ctx context.Context, runID, model string) ([]domain.Coefficient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, estimate, std_err, z, p FROM coefficients WHERE run_id = ? AND model = ? ORDER BY position`, runID, model)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load coefficients", err)
	}
	defer rows.Close()

	var out []domain.Coefficient
	for rows.Next() {
		var c domain.Coefficient
		var est, se, z, p sql.NullFloat64
		if err := rows.Scan(&c.Term, &est, &se, &z, &p); err != nil {
			return nil, apperrors.NewStorageError("failed to scan coefficient", err)
		}
		c.Estimate, c.StdErr, c.Z, c.P = fromNull(est), fromNull(se), fromNull(z), fromNull(p)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RunIDs lists stored runs, newest first.
func (s *Store) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list runs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewStorageError("failed to scan run id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
