// Package store persists exhibition records to Postgres, keyed by title.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/artner/artmap-crawler/internal/blob"
	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/metrics"
	"github.com/artner/artmap-crawler/internal/normalize"
)

// Column widths inherited from the upstream schema.
const (
	maxTitleLen = 200
	maxVenueLen = 100
)

const maxPosterBytes = 10 << 20

const upsertSQL = `
INSERT INTO exhibitions (
	title, venue, start_date, end_date, period, address, opening_hours,
	closed_days, price, telephone, website, artists, description, detail_url,
	updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
ON CONFLICT (title) DO UPDATE SET
	venue = EXCLUDED.venue,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	period = EXCLUDED.period,
	address = EXCLUDED.address,
	opening_hours = EXCLUDED.opening_hours,
	closed_days = EXCLUDED.closed_days,
	price = EXCLUDED.price,
	telephone = EXCLUDED.telephone,
	website = EXCLUDED.website,
	artists = EXCLUDED.artists,
	description = EXCLUDED.description,
	detail_url = EXCLUDED.detail_url,
	updated_at = now()
RETURNING id, (xmax = 0) AS inserted, (image_uri IS NULL) AS missing_poster`

const attachPosterSQL = `UPDATE exhibitions SET image_uri = $1 WHERE id = $2`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store upserts exhibition records. Each record maps to one row keyed by the
// truncated title; the poster image is side-loaded into the blob store only
// while the row has none, so the first successful download wins and is never
// replaced.
type Store struct {
	pool       dbPool
	blobs      blob.Store
	httpClient *http.Client
	logger     *zap.Logger
}

// New connects a Store to Postgres using the provided config.
func New(ctx context.Context, cfg Config, blobs blob.Store, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, blobs, nil, logger)
}

// NewWithPool constructs a Store from an existing pool, primarily for tests.
// A nil httpClient uses a 10 second default for image downloads.
func NewWithPool(pool dbPool, blobs blob.Store, httpClient *http.Client, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	metrics.Init()
	return &Store{
		pool:       pool,
		blobs:      blobs,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save upserts one record and reports whether the row was created, updated,
// or skipped. Records without a usable title or venue are skipped without
// error. The poster download runs whenever the row still has no image, so a
// failed download is retried on the next run; its failure never fails the
// upsert.
func (s *Store) Save(ctx context.Context, rec exhibit.Record) (exhibit.Outcome, error) {
	title := normalize.Truncate(normalize.CleanText(rec.Title), maxTitleLen)
	venue := normalize.Truncate(normalize.CleanText(rec.Venue), maxVenueLen)
	if title == "" || venue == "" {
		metrics.ObserveUpsert(string(exhibit.OutcomeSkipped))
		return exhibit.OutcomeSkipped, nil
	}

	var (
		id            int64
		inserted      bool
		missingPoster bool
	)
	row := s.pool.QueryRow(ctx, upsertSQL,
		title,
		venue,
		rec.StartDate,
		rec.EndDate,
		rec.Period,
		rec.Address,
		rec.OpeningHours,
		rec.ClosedDays,
		rec.Price,
		rec.Telephone,
		rec.Website,
		rec.Artists,
		rec.Description,
		rec.DetailURL,
	)
	if err := row.Scan(&id, &inserted, &missingPoster); err != nil {
		return "", fmt.Errorf("upsert exhibition %q: %w", title, err)
	}

	outcome := exhibit.OutcomeUpdated
	if inserted {
		outcome = exhibit.OutcomeCreated
	}
	metrics.ObserveUpsert(string(outcome))

	if missingPoster {
		s.attachPoster(ctx, id, title, rec.MainImage())
	}
	return outcome, nil
}

// attachPoster downloads the poster, stores it, and records the blob URI on
// the still-imageless row.
func (s *Store) attachPoster(ctx context.Context, id int64, title, imageURL string) {
	if imageURL == "" || s.blobs == nil {
		return
	}
	uri, err := s.downloadPoster(ctx, imageURL)
	if err != nil {
		metrics.ObserveImageDownload("error")
		s.logger.Warn("poster download failed",
			zap.String("title", title),
			zap.String("image_url", imageURL),
			zap.Error(err))
		return
	}
	metrics.ObserveImageDownload("ok")
	if _, err := s.pool.Exec(ctx, attachPosterSQL, uri, id); err != nil {
		s.logger.Warn("poster uri update failed",
			zap.String("title", title),
			zap.Error(err))
	}
}

func (s *Store) downloadPoster(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get image: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}

	objectPath := fmt.Sprintf("posters/%s%s", uuid.NewString(), posterExt(imageURL))
	uri, err := s.blobs.PutObject(ctx, objectPath, resp.Header.Get("Content-Type"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return uri, nil
}

func posterExt(imageURL string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(imageURL, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
