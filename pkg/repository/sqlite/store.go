// Package sqlite is the embedded metadata store used for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"folio/pkg/models"
	"folio/pkg/repository"

	_ "modernc.org/sqlite"
)

var serviceColumnList = []string{
	"id", "collection", "title", "details", "icon", "image_paths", "price_cents", "currency",
	"is_bookable", "duration_minutes", "created_at", "updated_at",
}

var serviceColumns = strings.Join(serviceColumnList, ", ")

// Store manages project and service metadata in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ repository.Repository = (*Store)(nil)

// New opens the database at dbPath and creates the schema.
func New(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", repository.ErrDatabase, err)
	}

	ctx := context.Background()

	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", repository.ErrDatabase, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", repository.ErrDatabase, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject inserts p. The id must not exist in the collection.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	images, tags, err := encodeArrays(p.ImagePaths, p.Services)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, collection, title, details, image_paths, services, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Collection, p.Title, p.Details, images, tags, p.CreatedAt.UTC(), nullTime(p.UpdatedAt),
	)
	return insertError(err)
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, collection, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection, title, details, image_paths, services, created_at, updated_at
		 FROM projects WHERE collection = ? AND id = ?`,
		collection, id,
	)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return p, err
}

// ListProjects returns every project in the collection, newest first.
func (s *Store) ListProjects(ctx context.Context, collection string) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, title, details, image_paths, services, created_at, updated_at
		 FROM projects WHERE collection = ?
		 ORDER BY created_at DESC, rowid DESC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	return projects, nil
}

// UpdateProject overwrites the mutable fields of p.
func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	images, tags, err := encodeArrays(p.ImagePaths, p.Services)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET title = ?, details = ?, image_paths = ?, services = ?, updated_at = ?
		 WHERE collection = ? AND id = ?`,
		p.Title, p.Details, images, tags, nullTime(p.UpdatedAt), p.Collection, p.ID,
	)
	return affected(result, err)
}

// DeleteProject removes a project row.
func (s *Store) DeleteProject(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE collection = ? AND id = ?`, collection, id)
	return affected(result, err)
}

// CreateService inserts svc.
func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	images, _, err := encodeArrays(svc.ImagePaths, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO services (`+serviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.Collection, svc.Title, svc.Details, nullString(svc.Icon), images,
		nullInt64(svc.PriceCents), models.NormalizeCurrency(svc.Currency), svc.IsBookable,
		nullInt(svc.DurationMinutes), svc.CreatedAt.UTC(), nullTime(svc.UpdatedAt),
	)
	return insertError(err)
}

// GetService retrieves a service by id.
func (s *Store) GetService(ctx context.Context, collection, id string) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE collection = ? AND id = ?`,
		collection, id,
	)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return svc, err
}

// ListServices returns the services matching filter, newest first.
func (s *Store) ListServices(ctx context.Context, collection string, filter models.ServiceFilter) ([]models.Service, error) {
	query := sq.Select(serviceColumnList...).
		From("services").
		Where(sq.Eq{"collection": collection}).
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(filter.EffectiveLimit()))

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}
	if filter.Bookable != nil {
		query = query.Where(sq.Eq{"is_bookable": *filter.Bookable})
	}
	if filter.MinPrice != nil {
		query = query.Where(sq.GtOrEq{"price_cents": *filter.MinPrice})
	}
	if filter.MaxPrice != nil {
		query = query.Where(sq.LtOrEq{"price_cents": *filter.MaxPrice})
	}

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %w", repository.ErrDatabase, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	return services, nil
}

// UpdateService overwrites the mutable fields of svc.
func (s *Store) UpdateService(ctx context.Context, svc *models.Service) error {
	images, _, err := encodeArrays(svc.ImagePaths, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE services SET title = ?, details = ?, icon = ?, image_paths = ?, price_cents = ?,
		 currency = ?, is_bookable = ?, duration_minutes = ?, updated_at = ?
		 WHERE collection = ? AND id = ?`,
		svc.Title, svc.Details, nullString(svc.Icon), images, nullInt64(svc.PriceCents),
		models.NormalizeCurrency(svc.Currency), svc.IsBookable, nullInt(svc.DurationMinutes),
		nullTime(svc.UpdatedAt), svc.Collection, svc.ID,
	)
	return affected(result, err)
}

// DeleteService removes a service row.
func (s *Store) DeleteService(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE collection = ? AND id = ?`, collection, id)
	return affected(result, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		p       models.Project
		images  string
		tags    string
		updated sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Collection, &p.Title, &p.Details, &images, &tags, &p.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}

	if err := decodeArray(images, &p.ImagePaths); err != nil {
		return nil, err
	}
	if err := decodeArray(tags, &p.Services); err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	return &p, nil
}

func scanService(row scanner) (*models.Service, error) {
	var (
		svc      models.Service
		icon     sql.NullString
		images   string
		price    sql.NullInt64
		duration sql.NullInt64
		updated  sql.NullTime
	)
	err := row.Scan(&svc.ID, &svc.Collection, &svc.Title, &svc.Details, &icon, &images, &price,
		&svc.Currency, &svc.IsBookable, &duration, &svc.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}

	if err := decodeArray(images, &svc.ImagePaths); err != nil {
		return nil, err
	}
	svc.Icon = icon.String
	if price.Valid {
		v := price.Int64
		svc.PriceCents = &v
	}
	if duration.Valid {
		v := int(duration.Int64)
		svc.DurationMinutes = &v
	}
	if updated.Valid {
		t := updated.Time
		svc.UpdatedAt = &t
	}
	return &svc, nil
}

func encodeArrays(images, tags []string) (string, string, error) {
	if images == nil {
		images = []string{}
	}
	if tags == nil {
		tags = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return "", "", fmt.Errorf("%w: encode image paths: %w", repository.ErrDatabase, err)
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("%w: encode services: %w", repository.ErrDatabase, err)
	}
	return string(imagesJSON), string(tagsJSON), nil
}

func decodeArray(raw string, dst *[]string) error {
	*dst = []string{}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: decode array column: %w", repository.ErrDatabase, err)
	}
	return nil
}

func insertError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repository.ErrExists
	}
	return fmt.Errorf("%w: %w", repository.ErrDatabase, err)
}

func affected(result sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", repository.ErrDatabase, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
