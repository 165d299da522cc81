package resource

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"folio/pkg/apierr"
	"folio/pkg/models"
	"folio/pkg/repository"
)

const serviceDetailsMax = 5000

// ServiceInput is a service create form. Numeric fields keep their raw
// form text; an empty value means unset.
type ServiceInput struct {
	Title           string
	Details         string
	Icon            string
	PriceCents      string
	Currency        string
	IsBookable      string
	DurationMinutes string
	Images          []Upload
}

// ServicePatch carries the fields present in an update form. For nullable
// fields "" or "null" clears the stored value.
type ServicePatch struct {
	Title           *string
	Details         *string
	Icon            *string
	PriceCents      *string
	Currency        *string
	IsBookable      *string
	DurationMinutes *string
	DeleteImage     bool
	Images          []Upload
}

// Services runs service flows for one collection.
type Services struct {
	collection string
	repo       repository.Services
	up         uploader
	deps       Deps
}

// NewServices binds the service flows to collection.
func NewServices(collection string, repo repository.Services, deps Deps) *Services {
	deps = deps.withDefaults()
	return &Services{
		collection: collection,
		repo:       repo,
		up:         uploader{blobs: deps.Blobs, rules: serviceImages, logger: deps.Logger},
		deps:       deps,
	}
}

func (s *Services) Collection() string {
	return s.collection
}

// List returns services matching filter, newest first.
func (s *Services) List(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error) {
	if filter.Offset < 0 {
		return nil, apierr.Validation("offset must not be negative")
	}
	services, err := s.repo.ListServices(ctx, s.collection, filter)
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch services", err)
	}
	return services, nil
}

func (s *Services) Get(ctx context.Context, id string) (*models.Service, error) {
	if !ValidID(id) {
		return nil, apierr.Validation("Invalid service ID format")
	}
	return s.fetch(ctx, id, "Failed to fetch service")
}

func (s *Services) fetch(ctx context.Context, id, failure string) (*models.Service, error) {
	svc, err := s.repo.GetService(ctx, s.collection, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierr.NotFound("Service not found")
	}
	if err != nil {
		return nil, apierr.Upstream(failure, err)
	}
	return svc, nil
}

// Create validates in, uploads the optional image and inserts the record.
func (s *Services) Create(ctx context.Context, in ServiceInput) (*models.Service, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	details, err := validateDetails(in.Details, serviceDetailsMax)
	if err != nil {
		return nil, err
	}
	price, err := parseNonNegative(in.PriceCents, "price_cents")
	if err != nil {
		return nil, err
	}
	duration, err := parseNonNegative(in.DurationMinutes, "duration_minutes")
	if err != nil {
		return nil, err
	}
	images := nonEmpty(in.Images)
	if len(images) > serviceImages.maxImages {
		return nil, apierr.Validation("Only one image allowed")
	}
	if err := serviceImages.validate(images, s.deps.MaxUploadBytes); err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	svc := &models.Service{
		ID:              s.deps.NewID(),
		Collection:      s.collection,
		Title:           title,
		Details:         details,
		Icon:            Sanitize(in.Icon, iconMax),
		PriceCents:      price,
		Currency:        models.NormalizeCurrency(in.Currency),
		IsBookable:      parseBool(in.IsBookable),
		DurationMinutes: toInt(duration),
		CreatedAt:       now,
	}
	svc.ImagePaths = serviceImages.keys(svc.ID, now, images, nil)

	if err := s.up.putAll(ctx, svc.ImagePaths, images); err != nil {
		return nil, apierr.Upstream("Failed to create service", err)
	}

	if err := s.repo.CreateService(ctx, svc); err != nil {
		s.up.rollback(ctx, "insert", svc.ImagePaths)
		return nil, apierr.Upstream("Failed to create service", err)
	}

	s.deps.Logger.Info().Str("id", svc.ID).Str("collection", s.collection).Msg("Service created")
	return svc, nil
}

// Update applies patch to the service with id.
func (s *Services) Update(ctx context.Context, id string, patch ServicePatch) (*models.Service, error) {
	if !ValidID(id) {
		return nil, apierr.Validation("Invalid service ID format")
	}
	existing, err := s.fetch(repository.NoCache(ctx), id, "Failed to update service")
	if err != nil {
		return nil, err
	}

	updated := *existing
	if updated.Title, err = patchText(patch.Title, titleMax, titleMin, "Title", existing.Title); err != nil {
		return nil, err
	}
	if updated.Details, err = patchText(patch.Details, serviceDetailsMax, detailsMin, "Details", existing.Details); err != nil {
		return nil, err
	}
	if patch.Icon != nil {
		updated.Icon = Sanitize(*patch.Icon, iconMax)
		if updated.Icon == "null" {
			updated.Icon = ""
		}
	}
	if patch.PriceCents != nil {
		if updated.PriceCents, err = parseNonNegative(*patch.PriceCents, "price_cents"); err != nil {
			return nil, err
		}
	}
	if patch.Currency != nil {
		updated.Currency = models.NormalizeCurrency(*patch.Currency)
	}
	if patch.IsBookable != nil {
		updated.IsBookable = parseBool(*patch.IsBookable)
	}
	if patch.DurationMinutes != nil {
		duration, err := parseNonNegative(*patch.DurationMinutes, "duration_minutes")
		if err != nil {
			return nil, err
		}
		updated.DurationMinutes = toInt(duration)
	}

	var images []Upload
	if !patch.DeleteImage {
		images = nonEmpty(patch.Images)
		if len(images) > serviceImages.maxImages {
			return nil, apierr.Validation("Only one image allowed")
		}
		if err := serviceImages.validate(images, s.deps.MaxUploadBytes); err != nil {
			return nil, err
		}
	}

	now := s.deps.Now().UTC()
	added := serviceImages.keys(id, now, images, existing.ImagePaths)
	if err := s.up.putAll(ctx, added, images); err != nil {
		return nil, apierr.Upstream("Failed to update service", err)
	}

	var removed []string
	if patch.DeleteImage || len(added) > 0 {
		removed = existing.ImagePaths
		updated.ImagePaths = added
	}
	updated.UpdatedAt = &now

	if err := s.repo.UpdateService(ctx, &updated); err != nil {
		s.up.rollback(ctx, "update", added)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("Service not found")
		}
		return nil, apierr.Upstream("Failed to update service", err)
	}

	s.up.discard(ctx, id, removed)
	return &updated, nil
}

// Delete removes the service image and then its row.
func (s *Services) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return apierr.Validation("Invalid service ID format")
	}
	existing, err := s.fetch(repository.NoCache(ctx), id, "Failed to delete service")
	if err != nil {
		return err
	}

	s.up.discard(ctx, id, existing.ImagePaths)

	if err := s.repo.DeleteService(ctx, s.collection, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apierr.NotFound("Service not found")
		}
		return apierr.Upstream("Failed to delete service", err)
	}

	s.deps.Logger.Info().Str("id", id).Str("collection", s.collection).Msg("Service deleted")
	return nil
}

// parseNonNegative parses an optional integer form value. "" and "null"
// mean unset.
func parseNonNegative(raw, field string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, apierr.Validation("%s must be a non-negative integer", field)
	}
	return &v, nil
}

func parseBool(raw string) bool {
	return strings.TrimSpace(raw) == "true"
}

func toInt(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
