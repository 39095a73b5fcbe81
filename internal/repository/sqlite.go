package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS sightings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			observed_at TEXT,
			latitude REAL,
			longitude REAL,
			region TEXT,
			note TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cluster_runs (
			id TEXT PRIMARY KEY,
			epsilon_m REAL NOT NULL,
			min_samples INTEGER NOT NULL,
			eligible INTEGER NOT NULL,
			noise INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			cluster_id INTEGER NOT NULL,
			member_count INTEGER NOT NULL,
			center_lat REAL NOT NULL,
			center_lng REAL NOT NULL,
			radius_m INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES cluster_runs(id)
		);

		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			date TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			text TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sightings_observed_at ON sightings(observed_at);
		CREATE INDEX IF NOT EXISTS idx_sightings_source ON sightings(source);
		CREATE INDEX IF NOT EXISTS idx_reports_date ON reports(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) AddSighting(ctx context.Context, sg *models.Sighting) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sightings (source, observed_at, latitude, longitude, region, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(sg.Source),
		nullTime(sg.ObservedAt),
		nullFloat(sg.Latitude),
		nullFloat(sg.Longitude),
		nullString(sg.Region),
		sg.Note,
		sg.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("error inserting sighting: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading sighting id: %w", err)
	}
	sg.ID = id
	return nil
}

const sightingColumns = `id, source, observed_at, latitude, longitude, region, note, created_at`

func (s *SQLiteDB) ReadAll(ctx context.Context) ([]models.Sighting, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("error beginning snapshot: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+sightingColumns+` FROM sightings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error querying sightings: %w", err)
	}
	defer rows.Close()

	sightings, err := scanSightings(rows)
	if err != nil {
		return nil, err
	}
	return sightings, tx.Commit()
}

func (s *SQLiteDB) ListSightings(ctx context.Context, opts Filter) ([]models.Sighting, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "observed_at >= ?")
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if opts.Source != nil {
		where = append(where, "source = ?")
		args = append(args, string(*opts.Source))
	}
	if opts.GeolocatedOnly {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}

	query := `SELECT ` + sightingColumns + ` FROM sightings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

func (s *SQLiteDB) CountSightings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sightings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting sightings: %w", err)
	}
	return n, nil
}

func scanSightings(rows *sql.Rows) ([]models.Sighting, error) {
	var sightings []models.Sighting
	for rows.Next() {
		var (
			sg         models.Sighting
			source     string
			observedAt sql.NullString
			lat, lng   sql.NullFloat64
			region     sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&sg.ID, &source, &observedAt, &lat, &lng, &region, &sg.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning sighting: %w", err)
		}

		sg.Source = models.Source(source)
		if observedAt.Valid {
			t, err := time.Parse(timeLayout, observedAt.String)
			if err != nil {
				return nil, fmt.Errorf("error parsing observed_at for sighting %d: %w", sg.ID, err)
			}
			sg.ObservedAt = &t
		}
		if lat.Valid {
			sg.Latitude = &lat.Float64
		}
		if lng.Valid {
			sg.Longitude = &lng.Float64
		}
		if region.Valid {
			sg.Region = &region.String
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("error parsing created_at for sighting %d: %w", sg.ID, err)
		}
		sg.CreatedAt = t

		sightings = append(sightings, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sightings: %w", err)
	}
	return sightings, nil
}

func (s *SQLiteDB) ReplaceClusters(ctx context.Context, run *models.ClusterRun) error {
	if run == nil || run.ID == "" {
		return errors.New("cluster run must have an id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning cluster replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
		return fmt.Errorf("error clearing clusters: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cluster_runs (id, epsilon_m, min_samples, eligible, noise, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.EpsilonMeters,
		run.MinSamples,
		run.Eligible,
		run.Noise,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("error recording cluster run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clusters (run_id, cluster_id, member_count, center_lat, center_lng, radius_m)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing cluster insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range run.Clusters {
		if _, err := stmt.ExecContext(ctx, run.ID, c.ClusterID, c.MemberCount, c.CenterLatitude, c.CenterLongitude, c.RadiusMeters); err != nil {
			return fmt.Errorf("error inserting cluster %d: %w", c.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing cluster replace: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListClusters(ctx context.Context) ([]models.ClusterSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, member_count, center_lat, center_lng, radius_m
		FROM clusters ORDER BY cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying clusters: %w", err)
	}
	defer rows.Close()

	var clusters []models.ClusterSummary
	for rows.Next() {
		var c models.ClusterSummary
		if err := rows.Scan(&c.ClusterID, &c.MemberCount, &c.CenterLatitude, &c.CenterLongitude, &c.RadiusMeters); err != nil {
			return nil, fmt.Errorf("error scanning cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}
	return clusters, nil
}

func (s *SQLiteDB) LatestRun(ctx context.Context) (*models.ClusterRun, error) {
	var (
		run                   models.ClusterRun
		startedAt, finishedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, epsilon_m, min_samples, eligible, noise, started_at, finished_at
		FROM cluster_runs ORDER BY rowid DESC LIMIT 1`,
	).Scan(&run.ID, &run.EpsilonMeters, &run.MinSamples, &run.Eligible, &run.Noise, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest run: %w", err)
	}

	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("error parsing started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("error parsing finished_at: %w", err)
	}

	// only the latest run's clusters are kept
	clusters, err := s.ListClusters(ctx)
	if err != nil {
		return nil, err
	}
	run.Clusters = clusters
	return &run, nil
}

func (s *SQLiteDB) AddReport(ctx context.Context, r *models.Report) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (source, date, url, title, text)
		VALUES (?, ?, ?, ?, ?)`,
		r.Source, r.Date.UTC().Format(timeLayout), r.URL, r.Title, r.Text,
	)
	if err != nil {
		return fmt.Errorf("error inserting report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading report id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteDB) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, date, url, title, text
		FROM reports ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var (
			r    models.Report
			date string
		)
		if err := rows.Scan(&r.ID, &r.Source, &date, &r.URL, &r.Title, &r.Text); err != nil {
			return nil, fmt.Errorf("error scanning report: %w", err)
		}
		if r.Date, err = time.Parse(timeLayout, date); err != nil {
			return nil, fmt.Errorf("error parsing report date: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
