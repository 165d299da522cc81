package resource

import (
	"context"
	"errors"

	"folio/pkg/apierr"
	"folio/pkg/models"
	"folio/pkg/repository"
)

const projectDetailsMax = 10000

// ProjectInput is a validated-on-create project form.
type ProjectInput struct {
	Title    string
	Details  string
	Services []string
	Images   []Upload
}

// ProjectPatch carries the fields present in an update form. Nil pointers
// are absent fields.
type ProjectPatch struct {
	Title        *string
	Details      *string
	Services     *[]string
	DeleteImages []string
	Images       []Upload
}

// Projects runs project flows for one collection.
type Projects struct {
	collection string
	repo       repository.Projects
	up         uploader
	deps       Deps
}

// NewProjects binds the project flows to collection.
func NewProjects(collection string, repo repository.Projects, deps Deps) *Projects {
	deps = deps.withDefaults()
	return &Projects{
		collection: collection,
		repo:       repo,
		up:         uploader{blobs: deps.Blobs, rules: projectImages, logger: deps.Logger},
		deps:       deps,
	}
}

// Collection returns the collection the flows are bound to.
func (p *Projects) Collection() string {
	return p.collection
}

// List returns every project, newest first.
func (p *Projects) List(ctx context.Context) ([]models.Project, error) {
	projects, err := p.repo.ListProjects(ctx, p.collection)
	if err != nil {
		return nil, apierr.Upstream("Failed to fetch projects", err)
	}
	return projects, nil
}

// Get returns one project.
func (p *Projects) Get(ctx context.Context, id string) (*models.Project, error) {
	if !ValidID(id) {
		return nil, apierr.Validation("Invalid project ID format")
	}
	return p.fetch(ctx, id, "Failed to fetch project")
}

func (p *Projects) fetch(ctx context.Context, id, failure string) (*models.Project, error) {
	project, err := p.repo.GetProject(ctx, p.collection, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierr.NotFound("Project not found")
	}
	if err != nil {
		return nil, apierr.Upstream(failure, err)
	}
	return project, nil
}

// Create validates in, uploads its images and inserts the record. Nothing
// is written when validation fails, and nothing is left behind on failure.
func (p *Projects) Create(ctx context.Context, in ProjectInput) (*models.Project, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	details, err := validateDetails(in.Details, projectDetailsMax)
	if err != nil {
		return nil, err
	}
	images := nonEmpty(in.Images)
	if len(images) > projectImages.maxImages {
		return nil, apierr.Validation("Maximum %d images allowed", projectImages.maxImages)
	}
	if err := projectImages.validate(images, p.deps.MaxUploadBytes); err != nil {
		return nil, err
	}

	now := p.deps.Now().UTC()
	project := &models.Project{
		ID:         p.deps.NewID(),
		Collection: p.collection,
		Title:      title,
		Details:    details,
		Services:   sanitizeTags(in.Services),
		CreatedAt:  now,
	}
	project.ImagePaths = projectImages.keys(project.ID, now, images, nil)

	if err := p.up.putAll(ctx, project.ImagePaths, images); err != nil {
		return nil, apierr.Upstream("Failed to create project", err)
	}

	if err := p.repo.CreateProject(ctx, project); err != nil {
		p.up.rollback(ctx, "insert", project.ImagePaths)
		return nil, apierr.Upstream("Failed to create project", err)
	}

	p.deps.Logger.Info().Str("id", project.ID).Str("collection", p.collection).
		Int("images", len(project.ImagePaths)).Msg("Project created")
	return project, nil
}

// Update applies patch to the project with id. New images are uploaded
// before the row changes; removed images are deleted after.
func (p *Projects) Update(ctx context.Context, id string, patch ProjectPatch) (*models.Project, error) {
	if !ValidID(id) {
		return nil, apierr.Validation("Invalid project ID format")
	}
	existing, err := p.fetch(repository.NoCache(ctx), id, "Failed to update project")
	if err != nil {
		return nil, err
	}

	updated := *existing
	if updated.Title, err = patchText(patch.Title, titleMax, titleMin, "Title", existing.Title); err != nil {
		return nil, err
	}
	if updated.Details, err = patchText(patch.Details, projectDetailsMax, detailsMin, "Details", existing.Details); err != nil {
		return nil, err
	}
	if patch.Services != nil {
		updated.Services = sanitizeTags(*patch.Services)
	}

	removed, kept, err := splitImages(id, existing.ImagePaths, patch.DeleteImages)
	if err != nil {
		return nil, err
	}

	images := nonEmpty(patch.Images)
	if len(kept)+len(images) > projectImages.maxImages {
		return nil, apierr.Validation("Maximum %d images allowed", projectImages.maxImages)
	}
	if err := projectImages.validate(images, p.deps.MaxUploadBytes); err != nil {
		return nil, err
	}

	now := p.deps.Now().UTC()
	added := projectImages.keys(id, now, images, existing.ImagePaths)
	if err := p.up.putAll(ctx, added, images); err != nil {
		return nil, apierr.Upstream("Failed to update project", err)
	}

	updated.ImagePaths = append(kept, added...)
	updated.UpdatedAt = &now

	if err := p.repo.UpdateProject(ctx, &updated); err != nil {
		p.up.rollback(ctx, "update", added)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("Project not found")
		}
		return nil, apierr.Upstream("Failed to update project", err)
	}

	p.up.discard(ctx, id, removed)
	return &updated, nil
}

// Delete removes the project's images and then its row. It returns the
// number of image paths the record referenced.
func (p *Projects) Delete(ctx context.Context, id string) (int, error) {
	if !ValidID(id) {
		return 0, apierr.Validation("Invalid project ID format")
	}
	existing, err := p.fetch(repository.NoCache(ctx), id, "Failed to delete project")
	if err != nil {
		return 0, err
	}

	p.up.discard(ctx, id, existing.ImagePaths)

	if err := p.repo.DeleteProject(ctx, p.collection, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apierr.NotFound("Project not found")
		}
		return 0, apierr.Upstream("Failed to delete project", err)
	}

	p.deps.Logger.Info().Str("id", id).Str("collection", p.collection).Msg("Project deleted")
	return len(existing.ImagePaths), nil
}

func sanitizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = Sanitize(t, tagMax); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// splitImages checks that every path in remove belongs to the record and
// returns the removed and kept paths.
func splitImages(id string, current, remove []string) ([]string, []string, error) {
	owned := make(map[string]bool, len(current))
	for _, path := range current {
		owned[path] = true
	}

	drop := make(map[string]bool, len(remove))
	for _, path := range remove {
		if path == "" {
			continue
		}
		if len(path) <= len(id)+1 || path[:len(id)+1] != id+"/" || !owned[path] {
			return nil, nil, apierr.Validation("Invalid image path: %s", path)
		}
		drop[path] = true
	}

	removed := make([]string, 0, len(drop))
	kept := make([]string, 0, len(current))
	for _, path := range current {
		if drop[path] {
			removed = append(removed, path)
		} else {
			kept = append(kept, path)
		}
	}
	return removed, kept, nil
}
