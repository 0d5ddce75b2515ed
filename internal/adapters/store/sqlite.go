// Package store holds the document store and geo index adapters.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps users, reports and call records.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, `
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if !memory {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("module", "store.sqlite").Str("path", path).Msg("database ready")
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT UNIQUE NOT NULL,
		full_name  TEXT NOT NULL,
		role       TEXT NOT NULL,
		phone      TEXT NOT NULL DEFAULT '',
		lng        REAL,
		lat        REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS reports (
		id            TEXT PRIMARY KEY,
		farmer_id     TEXT NOT NULL REFERENCES users(id),
		disease_label TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		lng           REAL,
		lat           REAL,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS call_sessions (
		id               TEXT PRIMARY KEY,
		report_id        TEXT NOT NULL REFERENCES reports(id),
		farmer_id        TEXT NOT NULL,
		vet_id           TEXT NOT NULL DEFAULT '',
		call_start       INTEGER NOT NULL,
		call_end         INTEGER,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		active           INTEGER NOT NULL DEFAULT 1,
		notes            TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_call_sessions_active ON call_sessions(active, vet_id);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *SQLiteStore) UpsertUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = domain.UserID(uuid.NewString())
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	lng, lat := nullPoint(u.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, role, phone, lng, lat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			role = excluded.role,
			phone = excluded.phone,
			lng = excluded.lng,
			lat = excluded.lat
	`, u.ID, u.Email, u.FullName, u.Role, u.Phone, lng, lat, u.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, phone, lng, lat, created_at
		FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, err
}

func (s *SQLiteStore) ListUsersByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, full_name, role, phone, lng, lat, created_at
		FROM users WHERE role = ? ORDER BY created_at`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u        domain.User
		lng, lat sql.NullFloat64
		created  int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Phone, &lng, &lat, &created); err != nil {
		return nil, err
	}
	u.Location = pointOf(lng, lat)
	u.CreatedAt = time.UnixMilli(created).UTC()
	return &u, nil
}

// ---- reports ----

func (s *SQLiteStore) InsertReport(ctx context.Context, r *domain.Report) error {
	if r.ID == "" {
		r.ID = domain.ReportID(uuid.NewString())
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.ReportPending
	}
	lng, lat := nullPoint(r.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, farmer_id, disease_label, status, lng, lat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.FarmerID, r.DiseaseLabel, r.Status, lng, lat, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindReport(ctx context.Context, id domain.ReportID) (*domain.Report, error) {
	var (
		r        domain.Report
		lng, lat sql.NullFloat64
		created  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, farmer_id, disease_label, status, lng, lat, created_at
		FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.FarmerID, &r.DiseaseLabel, &r.Status, &lng, &lat, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	r.Location = pointOf(lng, lat)
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}

// ---- call records ----

func (s *SQLiteStore) InsertCall(ctx context.Context, rec *domain.CallRecord) error {
	if rec.ID == "" {
		rec.ID = domain.CallID(uuid.NewString())
	}
	if rec.CallStart.IsZero() {
		rec.CallStart = time.Now().UTC()
	}
	rec.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_sessions (id, report_id, farmer_id, vet_id, call_start, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, rec.ID, rec.ReportID, rec.FarmerID, rec.VetID, rec.CallStart.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindCall(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, report_id, farmer_id, vet_id, call_start, call_end, duration_seconds, active, notes
		FROM call_sessions WHERE id = ?`, id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call %s: %w", id, core.ErrNotFound)
	}
	return rec, err
}

func (s *SQLiteStore) JoinCall(ctx context.Context, id domain.CallID, vet domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE call_sessions SET vet_id = ? WHERE id = ?`, vet, id)
	if err != nil {
		return fmt.Errorf("join call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("call %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// EndCall closes the record and stores the call duration in whole seconds.
func (s *SQLiteStore) EndCall(ctx context.Context, id domain.CallID, end time.Time, notes string) (*domain.CallRecord, error) {
	rec, err := s.FindCall(ctx, id)
	if err != nil {
		return nil, err
	}
	dur := int(end.Sub(rec.CallStart) / time.Second)
	if dur < 0 {
		dur = 0
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE call_sessions
		SET call_end = ?, duration_seconds = ?, active = 0,
			notes = CASE WHEN ? <> '' THEN ? ELSE notes END
		WHERE id = ?
	`, end.UnixMilli(), dur, notes, notes, id)
	if err != nil {
		return nil, fmt.Errorf("end call: %w", err)
	}
	end = time.UnixMilli(end.UnixMilli()).UTC()
	rec.CallEnd = &end
	rec.DurationSeconds = dur
	rec.Active = false
	if notes != "" {
		rec.Notes = notes
	}
	return rec, nil
}

// ActiveCalls lists active records no vet has claimed yet.
func (s *SQLiteStore) ActiveCalls(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, farmer_id, vet_id, call_start, call_end, duration_seconds, active, notes
		FROM call_sessions WHERE active = 1 AND vet_id = ''
		ORDER BY call_start LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("active calls: %w", err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanCall(row scanner) (*domain.CallRecord, error) {
	var (
		rec     domain.CallRecord
		start   int64
		end     sql.NullInt64
		active  int
	)
	if err := row.Scan(&rec.ID, &rec.ReportID, &rec.FarmerID, &rec.VetID, &start, &end, &rec.DurationSeconds, &active, &rec.Notes); err != nil {
		return nil, err
	}
	rec.CallStart = time.UnixMilli(start).UTC()
	if end.Valid {
		t := time.UnixMilli(end.Int64).UTC()
		rec.CallEnd = &t
	}
	rec.Active = active == 1
	return &rec, nil
}

func nullPoint(p *domain.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lng, Valid: true}, sql.NullFloat64{Float64: p.Lat, Valid: true}
}

func pointOf(lng, lat sql.NullFloat64) *domain.Point {
	if !lng.Valid || !lat.Valid {
		return nil
	}
	return &domain.Point{Lng: lng.Float64, Lat: lat.Float64}
}
