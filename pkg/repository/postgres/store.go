// Package postgres is the PostgreSQL metadata store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"folio/pkg/models"
	"folio/pkg/repository"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var projectColumns = []string{
	"id", "collection", "title", "details", "image_paths", "services", "created_at", "updated_at",
}

var serviceColumns = []string{
	"id", "collection", "title", "details", "icon", "image_paths", "price_cents", "currency",
	"is_bookable", "duration_minutes", "created_at", "updated_at",
}

// Store implements repository.Repository on PostgreSQL.
type Store struct {
	db DB
}

var _ repository.Repository = (*Store)(nil)

// New wraps db. The store owns db and closes it on Close.
func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.Ping(ctx), "database", "")
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	query := psql.Insert("projects").
		Columns(projectColumns...).
		Values(p.ID, p.Collection, p.Title, p.Details, nonNil(p.ImagePaths), nonNil(p.Services),
			p.CreatedAt, p.UpdatedAt)

	return s.exec(ctx, query, "project", p.ID, false)
}

func (s *Store) GetProject(ctx context.Context, collection, id string) (*models.Project, error) {
	query := psql.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"collection": collection, "id": id})

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, buildError(err)
	}

	p, err := scanProject(s.db.QueryRow(ctx, sqlText, args...))
	if err != nil {
		return nil, mapError(err, "project", id)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, collection string) ([]models.Project, error) {
	query := psql.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"collection": collection}).
		OrderBy("created_at DESC", "id DESC")

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, buildError(err)
	}

	rows, err := s.db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, mapError(err, "projects", collection)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, mapError(err, "projects", collection)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "projects", collection)
	}
	return projects, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	query := psql.Update("projects").
		Set("title", p.Title).
		Set("details", p.Details).
		Set("image_paths", nonNil(p.ImagePaths)).
		Set("services", nonNil(p.Services)).
		Set("updated_at", p.UpdatedAt).
		Where(sq.Eq{"collection": p.Collection, "id": p.ID})

	return s.exec(ctx, query, "project", p.ID, true)
}

func (s *Store) DeleteProject(ctx context.Context, collection, id string) error {
	query := psql.Delete("projects").Where(sq.Eq{"collection": collection, "id": id})
	return s.exec(ctx, query, "project", id, true)
}

func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	query := psql.Insert("services").
		Columns(serviceColumns...).
		Values(svc.ID, svc.Collection, svc.Title, svc.Details, nullString(svc.Icon), nonNil(svc.ImagePaths),
			svc.PriceCents, models.NormalizeCurrency(svc.Currency), svc.IsBookable, svc.DurationMinutes,
			svc.CreatedAt, svc.UpdatedAt)

	return s.exec(ctx, query, "service", svc.ID, false)
}

func (s *Store) GetService(ctx context.Context, collection, id string) (*models.Service, error) {
	query := psql.Select(serviceColumns...).
		From("services").
		Where(sq.Eq{"collection": collection, "id": id})

	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, buildError(err)
	}

	svc, err := scanService(s.db.QueryRow(ctx, sqlText, args...))
	if err != nil {
		return nil, mapError(err, "service", id)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, collection string, filter models.ServiceFilter) ([]models.Service, error) {
	query := psql.Select(serviceColumns...).
		From("services").
		Where(sq.Eq{"collection": collection}).
		OrderBy("created_at DESC", "id DESC").
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
		return nil, buildError(err)
	}

	rows, err := s.db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, mapError(err, "services", collection)
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, mapError(err, "services", collection)
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "services", collection)
	}
	return services, nil
}

func (s *Store) UpdateService(ctx context.Context, svc *models.Service) error {
	query := psql.Update("services").
		Set("title", svc.Title).
		Set("details", svc.Details).
		Set("icon", nullString(svc.Icon)).
		Set("image_paths", nonNil(svc.ImagePaths)).
		Set("price_cents", svc.PriceCents).
		Set("currency", models.NormalizeCurrency(svc.Currency)).
		Set("is_bookable", svc.IsBookable).
		Set("duration_minutes", svc.DurationMinutes).
		Set("updated_at", svc.UpdatedAt).
		Where(sq.Eq{"collection": svc.Collection, "id": svc.ID})

	return s.exec(ctx, query, "service", svc.ID, true)
}

func (s *Store) DeleteService(ctx context.Context, collection, id string) error {
	query := psql.Delete("services").Where(sq.Eq{"collection": collection, "id": id})
	return s.exec(ctx, query, "service", id, true)
}

// exec runs a write statement. With mustAffect, zero affected rows is ErrNotFound.
func (s *Store) exec(ctx context.Context, query sq.Sqlizer, entity, id string, mustAffect bool) error {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return buildError(err)
	}

	tag, err := s.db.Exec(ctx, sqlText, args...)
	if err != nil {
		return mapError(err, entity, id)
	}
	if mustAffect && tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, repository.ErrNotFound)
	}
	return nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Collection, &p.Title, &p.Details, &p.ImagePaths, &p.Services,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ImagePaths = nonNil(p.ImagePaths)
	p.Services = nonNil(p.Services)
	return &p, nil
}

func scanService(row pgx.Row) (*models.Service, error) {
	var (
		svc  models.Service
		icon *string
	)
	err := row.Scan(&svc.ID, &svc.Collection, &svc.Title, &svc.Details, &icon, &svc.ImagePaths,
		&svc.PriceCents, &svc.Currency, &svc.IsBookable, &svc.DurationMinutes, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if icon != nil {
		svc.Icon = *icon
	}
	svc.ImagePaths = nonNil(svc.ImagePaths)
	return &svc, nil
}

// mapError converts pgx/pgconn errors into repository errors.
func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, repository.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s %s: %w", entity, id, repository.ErrExists)
	}

	return fmt.Errorf("%w: %s %s: %w", repository.ErrDatabase, entity, id, err)
}

func buildError(err error) error {
	return fmt.Errorf("%w: build query: %w", repository.ErrDatabase, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
