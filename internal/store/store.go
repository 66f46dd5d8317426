// Package store provides the relational snapshot store and the
// reconciliation controllers that merge crawl candidates into it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver

	"campuscrawl/internal/academic"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config controls the store connection.
type Config struct {
	Driver string
	DSN    string
	// Cache enables the per-controller read-through reference cache.
	Cache bool
}

// Store owns the database pool. Individual workers check out exclusive
// sessions through Controller; the Store itself performs no entity writes.
type Store struct {
	db     *sql.DB
	driver string
	cache  bool
	logger *zap.Logger
}

// Open connects to the configured database, creates the schema when missing
// and seeds the static reference rows.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var driverName string
	switch cfg.Driver {
	case DriverSQLite, "":
		driverName = "sqlite"
		cfg.Driver = DriverSQLite
	case DriverPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	s := &Store{db: db, driver: cfg.Driver, cache: cfg.Cache, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.seed(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Controller checks out one exclusive session from the pool. Controllers are
// not safe for concurrent use; every worker must own its own instance.
func (s *Store) Controller(ctx context.Context) (*Controller, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout store session: %w", err)
	}
	c := &Controller{conn: conn, st: s, logger: s.logger}
	if s.cache {
		c.cache = newRefCache()
		if err := c.loadCache(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return c, nil
}

// rebind rewrites ? placeholders into the $n form Postgres expects. SQLite
// statements pass through untouched.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) pkColumn() string {
	if s.driver == DriverPostgres {
		return "id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (s *Store) migrate(ctx context.Context) error {
	pk := s.pkColumn()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS institutions (
			` + pk + `,
			source_id INTEGER NOT NULL UNIQUE,
			abbreviation TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			first_year INTEGER,
			last_year INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS departments (
			` + pk + `,
			source_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			institution_id BIGINT NOT NULL REFERENCES institutions(id),
			first_year INTEGER,
			last_year INTEGER,
			UNIQUE (institution_id, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS degrees (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS periods (
			id BIGINT PRIMARY KEY,
			part INTEGER NOT NULL,
			parts INTEGER NOT NULL,
			letter TEXT NOT NULL,
			UNIQUE (parts, part)
		)`,
		`CREATE TABLE IF NOT EXISTS shift_types (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			abbreviation TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			` + pk + `,
			source_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			abbreviation TEXT NOT NULL DEFAULT '',
			degree_id BIGINT REFERENCES degrees(id),
			institution_id BIGINT NOT NULL REFERENCES institutions(id),
			first_year INTEGER,
			last_year INTEGER,
			UNIQUE (institution_id, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS classes (
			` + pk + `,
			source_id INTEGER NOT NULL,
			department_id BIGINT NOT NULL REFERENCES departments(id),
			name TEXT NOT NULL DEFAULT '',
			abbreviation TEXT NOT NULL DEFAULT '',
			ects INTEGER,
			UNIQUE (source_id, department_id)
		)`,
		`CREATE TABLE IF NOT EXISTS class_instances (
			` + pk + `,
			class_id BIGINT NOT NULL REFERENCES classes(id),
			period_id BIGINT NOT NULL REFERENCES periods(id),
			year INTEGER NOT NULL,
			UNIQUE (class_id, year, period_id)
		)`,
		`CREATE TABLE IF NOT EXISTS students (
			` + pk + `,
			source_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			abbreviation TEXT NOT NULL DEFAULT '',
			course_id BIGINT REFERENCES courses(id),
			institution_id BIGINT NOT NULL REFERENCES institutions(id),
			first_year INTEGER,
			last_year INTEGER,
			UNIQUE (institution_id, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS teachers (
			` + pk + `,
			source_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			department_id BIGINT NOT NULL REFERENCES departments(id),
			first_year INTEGER,
			last_year INTEGER,
			UNIQUE (department_id, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS buildings (
			` + pk + `,
			source_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL UNIQUE,
			first_year INTEGER,
			last_year INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			` + pk + `,
			name TEXT NOT NULL,
			kind INTEGER NOT NULL,
			building_id BIGINT NOT NULL REFERENCES buildings(id),
			UNIQUE (building_id, name, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			` + pk + `,
			class_instance_id BIGINT NOT NULL REFERENCES class_instances(id),
			number INTEGER NOT NULL,
			type_id BIGINT NOT NULL REFERENCES shift_types(id),
			enrolled INTEGER,
			capacity INTEGER,
			minutes INTEGER,
			routes TEXT,
			restrictions TEXT,
			state TEXT,
			UNIQUE (class_instance_id, number, type_id)
		)`,
		`CREATE TABLE IF NOT EXISTS shift_instances (
			` + pk + `,
			shift_id BIGINT NOT NULL REFERENCES shifts(id),
			weekday INTEGER NOT NULL,
			start_min INTEGER NOT NULL,
			end_min INTEGER NOT NULL,
			room_id BIGINT REFERENCES rooms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			` + pk + `,
			student_id BIGINT NOT NULL REFERENCES students(id),
			class_instance_id BIGINT NOT NULL REFERENCES class_instances(id),
			attempt INTEGER,
			student_year INTEGER,
			statutes TEXT,
			observation TEXT,
			UNIQUE (student_id, class_instance_id)
		)`,
		`CREATE TABLE IF NOT EXISTS admissions (
			` + pk + `,
			student_id BIGINT REFERENCES students(id),
			name TEXT NOT NULL,
			course_id BIGINT NOT NULL REFERENCES courses(id),
			phase INTEGER NOT NULL,
			year INTEGER NOT NULL,
			option_number INTEGER,
			state TEXT,
			check_date TIMESTAMP NOT NULL,
			UNIQUE (course_id, year, phase, name)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM degrees").Scan(&count); err != nil {
		return fmt.Errorf("count degrees: %w", err)
	}
	if count > 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range academic.DefaultDegrees() {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO degrees (id, code, name) VALUES (?, ?, ?)"),
			d.ID, d.Code, d.Name); err != nil {
			return fmt.Errorf("seed degree %s: %w", d.Name, err)
		}
	}
	for _, p := range academic.DefaultPeriods() {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO periods (id, part, parts, letter) VALUES (?, ?, ?, ?)"),
			p.ID, p.Part, p.Parts, p.Letter); err != nil {
			return fmt.Errorf("seed period %d/%d: %w", p.Part, p.Parts, err)
		}
	}
	for _, t := range academic.DefaultShiftTypes() {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO shift_types (id, name, abbreviation) VALUES (?, ?, ?)"),
			t.ID, t.Name, t.Abbreviation); err != nil {
			return fmt.Errorf("seed shift type %s: %w", t.Abbreviation, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
