package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/well-timeline/backend/internal/models"
)

// Driver selects the SQL engine.
type Driver string

const (
	DriverDuckDB   Driver = "duckdb"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver parses a driver name, defaulting to DuckDB.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "duckdb":
		return DriverDuckDB, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown persistence driver %q", s)
	}
}

const timeLayout = time.RFC3339Nano

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                 TEXT PRIMARY KEY,
		file_id            TEXT NOT NULL,
		file_name          TEXT NOT NULL,
		status             TEXT NOT NULL,
		intervention_count INTEGER NOT NULL,
		analyzed_count     INTEGER NOT NULL,
		last_error         TEXT NOT NULL,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS interventions (
		session_id  TEXT NOT NULL,
		idx         INTEGER NOT NULL,
		fecha_texto TEXT NOT NULL,
		fecha_iso   TEXT NOT NULL,
		body        TEXT NOT NULL,
		PRIMARY KEY (session_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS analyses (
		session_id  TEXT NOT NULL,
		idx         INTEGER NOT NULL,
		seq_rank    INTEGER NOT NULL,
		resumen     TEXT NOT NULL,
		mode        TEXT NOT NULL,
		payload     TEXT NOT NULL,
		report      TEXT NOT NULL,
		attempts    INTEGER NOT NULL,
		analyzed_at TEXT NOT NULL,
		PRIMARY KEY (session_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		session_id TEXT NOT NULL,
		step       INTEGER NOT NULL,
		state      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, step)
	)`,
}

// SQLStore implements Store on database/sql.
var _ Store = (*SQLStore)(nil)

type SQLStore struct {
	db     *sql.DB
	driver Driver
}

// Option tunes how a database is opened.
type Option func(*openOptions)

type openOptions struct {
	duckThreads     int
	duckMemoryLimit string
}

// WithDuckDBThreads sets the DuckDB worker thread count.
func WithDuckDBThreads(n int) Option {
	return func(o *openOptions) {
		if n > 0 {
			o.duckThreads = n
		}
	}
}

// WithDuckDBMemoryLimit sets the DuckDB memory limit, e.g. "512MB".
func WithDuckDBMemoryLimit(limit string) Option {
	return func(o *openOptions) {
		if limit = strings.TrimSpace(limit); limit != "" {
			o.duckMemoryLimit = limit
		}
	}
}

// Open connects to dsn with the given driver and applies the schema. For
// DuckDB and SQLite the dsn is a file path; an empty DuckDB path opens an
// in-memory database.
func Open(ctx context.Context, d Driver, dsn string, opts ...Option) (*SQLStore, error) {
	o := openOptions{duckThreads: 2, duckMemoryLimit: "512MB"}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		db  *sql.DB
		err error
	)
	switch d {
	case DriverDuckDB:
		db, err = openDuckDB(dsn, o)
	case DriverSQLite:
		if dsn == "" {
			dsn = "well-timeline.db"
		}
		if err = ensureDir(dsn); err == nil {
			db, err = sql.Open("sqlite", dsn)
		}
		if db != nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		err = fmt.Errorf("unknown persistence driver %q", d)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	return OpenDB(ctx, db, d)
}

// OpenDB wraps an open database and applies the schema.
func OpenDB(ctx context.Context, db *sql.DB, d Driver) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	log.Infof("[Store] Opened %s persistence", d)
	return &SQLStore{db: db, driver: d}, nil
}

func openDuckDB(path string, o openOptions) (*sql.DB, error) {
	if path != "" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", strings.ReplaceAll(o.duckMemoryLimit, "'", "")),
			fmt.Sprintf("PRAGMA threads=%d", o.duckThreads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warnf("[Store] Pragma warning: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create dirs: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, q execer, query string, args ...any) error {
	_, err := q.ExecContext(ctx, s.rebind(query), args...)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertSession = `INSERT INTO sessions
	(id, file_id, file_name, status, intervention_count, analyzed_count, last_error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		intervention_count = excluded.intervention_count,
		analyzed_count = excluded.analyzed_count,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at`

func sessionArgs(sess models.AnalysisSession) []any {
	return []any{
		sess.ID, sess.FileID, sess.FileName, string(sess.Status),
		sess.InterventionCount, sess.AnalyzedCount, sess.LastError,
		sess.CreatedAt.UTC().Format(timeLayout), sess.UpdatedAt.UTC().Format(timeLayout),
	}
}

// CreateSession stores a new session with its interventions and the
// initial snapshot.
func (s *SQLStore) CreateSession(ctx context.Context, sess models.AnalysisSession, items []models.RawIntervention, initial *models.WellState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.exec(ctx, tx, upsertSession, sessionArgs(sess)...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for _, it := range items {
		if err := s.exec(ctx, tx,
			`INSERT INTO interventions (session_id, idx, fecha_texto, fecha_iso, body) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, it.Index, it.FechaTexto, it.FechaISO, it.Text); err != nil {
			return fmt.Errorf("insert intervention %d: %w", it.Index, err)
		}
	}
	if err := s.saveSnapshot(ctx, tx, sess.ID, 0, initial); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSession upserts session metadata.
func (s *SQLStore) UpdateSession(ctx context.Context, sess models.AnalysisSession) error {
	if err := s.exec(ctx, s.db, upsertSession, sessionArgs(sess)...); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// SaveStep upserts an analysis and the snapshot it produced.
func (s *SQLStore) SaveStep(ctx context.Context, sessionID string, a models.InterventionAnalysis, step int, state *models.WellState) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	report, err := json.Marshal(a.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = s.exec(ctx, tx, `INSERT INTO analyses
		(session_id, idx, seq_rank, resumen, mode, payload, report, attempts, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, idx) DO UPDATE SET
			seq_rank = excluded.seq_rank,
			resumen = excluded.resumen,
			mode = excluded.mode,
			payload = excluded.payload,
			report = excluded.report,
			attempts = excluded.attempts,
			analyzed_at = excluded.analyzed_at`,
		sessionID, a.Index, a.Rank, a.Resumen, a.Mode, string(payload), string(report),
		a.Attempts, a.AnalyzedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert analysis %d: %w", a.Index, err)
	}
	if err := s.saveSnapshot(ctx, tx, sessionID, step, state); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) saveSnapshot(ctx context.Context, q execer, sessionID string, step int, state *models.WellState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	err = s.exec(ctx, q, `INSERT INTO snapshots (session_id, step, state, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, step) DO UPDATE SET
			state = excluded.state,
			created_at = excluded.created_at`,
		sessionID, step, string(data), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert snapshot %d: %w", step, err)
	}
	return nil
}

const selectSessions = `SELECT id, file_id, file_name, status, intervention_count, analyzed_count,
	last_error, created_at, updated_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (models.AnalysisSession, error) {
	var (
		sess             models.AnalysisSession
		status           string
		created, updated string
	)
	if err := r.Scan(&sess.ID, &sess.FileID, &sess.FileName, &status, &sess.InterventionCount,
		&sess.AnalyzedCount, &sess.LastError, &created, &updated); err != nil {
		return sess, err
	}
	sess.Status = models.SessionStatus(status)
	sess.CreatedAt, _ = time.Parse(timeLayout, created)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return sess, nil
}

// LoadSession reads a session with its interventions, analyses and
// snapshots.
func (s *SQLStore) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectSessions+` WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	rec := &SessionRecord{Session: sess}

	if rec.Interventions, err = s.loadInterventions(ctx, id); err != nil {
		return nil, err
	}
	if rec.Analyses, err = s.loadAnalyses(ctx, id); err != nil {
		return nil, err
	}
	if rec.Snapshots, err = s.loadSnapshots(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLStore) loadInterventions(ctx context.Context, id string) ([]models.RawIntervention, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT idx, fecha_texto, fecha_iso, body FROM interventions WHERE session_id = ? ORDER BY idx`), id)
	if err != nil {
		return nil, fmt.Errorf("select interventions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.RawIntervention, 0)
	for rows.Next() {
		var it models.RawIntervention
		if err := rows.Scan(&it.Index, &it.FechaTexto, &it.FechaISO, &it.Text); err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLStore) loadAnalyses(ctx context.Context, id string) ([]models.InterventionAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT idx, seq_rank, resumen, mode, payload, report, attempts, analyzed_at
		FROM analyses WHERE session_id = ? ORDER BY seq_rank`), id)
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.InterventionAnalysis, 0)
	for rows.Next() {
		var (
			a               models.InterventionAnalysis
			payload, report string
			analyzedAt      string
		)
		if err := rows.Scan(&a.Index, &a.Rank, &a.Resumen, &a.Mode, &payload, &report, &a.Attempts, &analyzedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %d: %w", a.Index, err)
		}
		if err := json.Unmarshal([]byte(report), &a.Report); err != nil {
			return nil, fmt.Errorf("decode report %d: %w", a.Index, err)
		}
		a.AnalyzedAt, _ = time.Parse(timeLayout, analyzedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) loadSnapshots(ctx context.Context, id string) ([]*models.WellState, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT step, state FROM snapshots WHERE session_id = ? ORDER BY step`), id)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*models.WellState, 0)
	for rows.Next() {
		var (
			step int
			data string
		)
		if err := rows.Scan(&step, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if step != len(out) {
			return nil, fmt.Errorf("snapshot gap at step %d", len(out))
		}
		st := models.NewWellState()
		if err := json.Unmarshal([]byte(data), st); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", step, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListSessions returns stored sessions, newest first.
func (s *SQLStore) ListSessions(ctx context.Context) ([]models.AnalysisSession, error) {
	rows, err := s.db.QueryContext(ctx, selectSessions)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.AnalysisSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteSession removes a session and everything stored for it.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"snapshots", "analyses", "interventions"} {
		if err := s.exec(ctx, tx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if err := s.exec(ctx, tx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}
