// Package postgres provides a PostgreSQL-backed project configuration store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/project"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	path       TEXT PRIMARY KEY,
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps project configurations in a single table keyed by path.
type Store struct {
	db *sql.DB
}

var _ project.ConfigStore = (*Store)(nil)

// New opens the database and makes sure the schema exists.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the projects table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	logging.L().Info("ensuring project schema")
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create projects table: %w", err)
	}
	return nil
}

// Load returns the configuration stored for p, or nil when there is none.
func (s *Store) Load(ctx context.Context, p string) (*project.Config, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("load_project", time.Since(start)) }()

	p = vfs.Clean(p)
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM projects WHERE path = $1`, p).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("load project %s", p))
	}
	return decode(p, raw)
}

// Save inserts or replaces the configuration of cfg.Path.
func (s *Store) Save(ctx context.Context, cfg *project.Config) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("save_project", time.Since(start)) }()

	p := vfs.Clean(cfg.Path)
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", p, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (path, config, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (path) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		p, raw)
	if err != nil {
		return apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("save project %s", p))
	}
	logging.WithContext(ctx).Debug("project config saved", zap.String("path", p))
	return nil
}

// Delete removes the configuration of p. Deleting an absent row is not
// an error.
func (s *Store) Delete(ctx context.Context, p string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_project", time.Since(start)) }()

	p = vfs.Clean(p)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE path = $1`, p); err != nil {
		return apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("delete project %s", p))
	}
	return nil
}

// List returns every stored configuration ordered by path.
func (s *Store) List(ctx context.Context) ([]*project.Config, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_projects", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, `SELECT path, config FROM projects ORDER BY path`)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, "list projects")
	}
	defer rows.Close()

	var out []*project.Config
	for rows.Next() {
		var (
			p   string
			raw []byte
		)
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		cfg, err := decode(p, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func decode(p string, raw []byte) (*project.Config, error) {
	var cfg project.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("decode project %s", p))
	}
	cfg.Path = p
	if cfg.Attributes == nil {
		cfg.Attributes = map[string][]string{}
	}
	return &cfg, nil
}
