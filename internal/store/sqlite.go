package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/edulead/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	school     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verification_cache (
	value       TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	verified_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_archive (
	id          TEXT PRIMARY KEY,
	school_name TEXT NOT NULL,
	person_name TEXT NOT NULL,
	role        TEXT,
	tier        INTEGER NOT NULL,
	whatsapp    TEXT,
	email       TEXT,
	linkedin    TEXT,
	confidence  REAL NOT NULL,
	archived_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	summary    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_school ON runs(school);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_verification_cache_expires_at ON verification_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, school model.School) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	schoolJSON, err := json.Marshal(school)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal school")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, school, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(schoolJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		School:    school,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.OrganizationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, school, status, result, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, school, status, result, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SchoolName != "" {
		query += ` AND json_extract(school, '$.name') = ?`
		args = append(args, filter.SchoolName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

func (s *SQLiteStore) GetCachedVerification(ctx context.Context, value string) (model.VerificationStatus, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status FROM verification_cache
		 WHERE value = ? AND expires_at > datetime('now')`,
		value,
	)

	var status string
	err := row.Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get cached verification")
	}
	return model.VerificationStatus(status), true, nil
}

func (s *SQLiteStore) SetCachedVerification(ctx context.Context, value string, status model.VerificationStatus, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_cache (value, status, verified_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(value) DO UPDATE SET status = excluded.status,
			verified_at = excluded.verified_at, expires_at = excluded.expires_at`,
		value, string(status), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached verification")
}

func (s *SQLiteStore) DeleteExpiredVerifications(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired verifications")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ArchiveLeads(ctx context.Context, results []model.OrganizationResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin archive")
	}
	defer tx.Rollback()

	var n int64
	for _, result := range results {
		for _, dm := range result.DecisionMakers {
			row := leadArchiveRow(result, dm)
			_, err := tx.ExecContext(ctx,
				`INSERT INTO lead_archive (id, school_name, person_name, role, tier, whatsapp, email, linkedin, confidence, archived_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				row...,
			)
			if err != nil {
				return 0, eris.Wrap(err, "sqlite: archive lead")
			}
			n++
		}
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit archive")
}

// leadArchiveRow flattens one decision-maker to archive column values.
// Shared with the Postgres store, which feeds the same shape to COPY.
func leadArchiveRow(result model.OrganizationResult, dm model.PersonLead) []any {
	var whatsapp, email string
	if dm.WhatsApp != nil {
		whatsapp = dm.WhatsApp.Value
	}
	if dm.Email != nil {
		email = dm.Email.Value
	}
	return []any{
		uuid.New().String(),
		result.School.Name,
		dm.Name,
		dm.RoleDisplay,
		dm.Tier,
		whatsapp,
		email,
		dm.LinkedIn,
		dm.Confidence,
		time.Now().UTC(),
	}
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, total int) (*model.Batch, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	batch := &model.Batch{
		ID: id,
		Summary: model.BatchSummary{
			Total:     total,
			StartedAt: now,
		},
	}
	summaryJSON, err := json.Marshal(batch.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal batch summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, summary, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(summaryJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
	}
	return batch, nil
}

func (s *SQLiteStore) UpdateBatch(ctx context.Context, batchID string, summary model.BatchSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET summary = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary FROM batches WHERE id = ?`,
		batchID,
	)

	var b model.Batch
	var summaryJSON string
	err := row.Scan(&b.ID, &summaryJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("batch not found: %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get batch")
	}
	if err := json.Unmarshal([]byte(summaryJSON), &b.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal batch summary")
	}
	return &b, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var schoolJSON string
	var resultJSON, errText sql.NullString

	err := row.Scan(&r.ID, &schoolJSON, &r.Status, &resultJSON, &errText, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(schoolJSON), &r.School); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal school")
	}
	if resultJSON.Valid {
		r.Result = &model.OrganizationResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	if errText.Valid {
		r.Error = errText.String
	}
	return &r, nil
}
