// Package resource implements the create, update and delete flows for
// projects and services. A record and its blobs are kept consistent with
// compensating deletes.
package resource

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"folio/pkg/apierr"
	"folio/pkg/blob"
	"folio/pkg/metrics"
)

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024

	titleMin      = 3
	titleMax      = 255
	detailsMin    = 10
	iconMax       = 100
	tagMax        = 100
	maxProjectImg = 10
	maxServiceImg = 1
)

// Upload is one file part of a multipart request. Open is only called
// after validation passes.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Deps are the collaborators shared by Projects and Services.
type Deps struct {
	Blobs          blob.Store
	Logger         zerolog.Logger
	Now            func() time.Time
	NewID          func() string
	MaxUploadBytes int64
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return d
}

// imageRules describe what a resource kind accepts.
type imageRules struct {
	kind         string
	maxImages    int
	contentTypes map[string]bool
	extensions   map[string]bool
}

var projectImages = imageRules{
	kind:      "projects",
	maxImages: maxProjectImg,
	contentTypes: map[string]bool{
		"image/jpeg": true, "image/png": true, "image/webp": true, "image/gif": true,
	},
	extensions: map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true},
}

var serviceImages = imageRules{
	kind:      "services",
	maxImages: maxServiceImg,
	contentTypes: map[string]bool{
		"image/jpeg": true, "image/png": true, "image/webp": true, "image/svg+xml": true,
	},
	extensions: map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "svg": true},
}

// ValidID reports whether id is a canonical RFC 4122 UUID of version 1 to 5.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return u.Variant() == uuid.RFC4122 && u.Version() >= 1 && u.Version() <= 5
}

// Sanitize trims s and truncates it to max runes.
func Sanitize(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func validateTitle(raw string) (string, error) {
	title := Sanitize(raw, titleMax)
	if utf8.RuneCountInString(title) < titleMin {
		return "", apierr.Validation("Title is required (min %d characters)", titleMin)
	}
	return title, nil
}

func validateDetails(raw string, max int) (string, error) {
	details := Sanitize(raw, max)
	if utf8.RuneCountInString(details) < detailsMin {
		return "", apierr.Validation("Details are required (min %d characters)", detailsMin)
	}
	return details, nil
}

// patchText applies the update rule for a text field: absent or blank keeps
// the current value, a short value is rejected.
func patchText(raw *string, max, min int, field, current string) (string, error) {
	if raw == nil {
		return current, nil
	}
	v := Sanitize(*raw, max)
	if v == "" {
		return current, nil
	}
	if utf8.RuneCountInString(v) < min {
		return "", apierr.Validation("%s must be at least %d characters", field, min)
	}
	return v, nil
}

// nonEmpty drops zero-size parts.
func nonEmpty(uploads []Upload) []Upload {
	out := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		if u.Size > 0 {
			out = append(out, u)
		}
	}
	return out
}

func (r imageRules) validate(uploads []Upload, maxBytes int64) error {
	for _, u := range uploads {
		if !r.contentTypes[u.ContentType] {
			return apierr.Validation("Invalid file type: %s", u.ContentType)
		}
		if u.Size > maxBytes {
			return apierr.Validation("File too large: %d bytes", u.Size)
		}
		if u.Open == nil {
			return apierr.Validation("Unreadable file: %s", u.Filename)
		}
	}
	return nil
}

func (r imageRules) safeExt(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if r.extensions[ext] {
		return ext
	}
	return "jpg"
}

// keys returns the blob path for each upload, in input order. Paths in
// taken are skipped so a new upload never lands on a blob the record
// already references.
func (r imageRules) keys(id string, now time.Time, uploads []Upload, taken []string) []string {
	used := make(map[string]bool, len(taken))
	for _, key := range taken {
		used[key] = true
	}

	keys := make([]string, len(uploads))
	n := 0
	for i, u := range uploads {
		ext := r.safeExt(u.Filename)
		for {
			key := fmt.Sprintf("%s/%d-%d.%s", id, now.UnixMilli(), n, ext)
			n++
			if !used[key] {
				keys[i] = key
				break
			}
		}
	}
	return keys
}

// uploader writes and compensates blobs for one resource kind.
type uploader struct {
	blobs  blob.Store
	rules  imageRules
	logger zerolog.Logger
}

// putAll uploads every part concurrently. On any failure the keys this
// call wrote are deleted again before the error is returned. Keys whose
// Put failed are left alone, they may belong to someone else.
func (u uploader) putAll(ctx context.Context, keys []string, uploads []Upload) error {
	if len(uploads) == 0 {
		return nil
	}

	written := make([]bool, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i := range uploads {
		key, part := keys[i], uploads[i]
		g.Go(func() error {
			rc, err := part.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", part.Filename, err)
			}
			defer rc.Close()

			err = u.blobs.Put(gctx, key, rc, part.Size, part.ContentType)
			metrics.BlobOperations.WithLabelValues("put", metrics.Outcome(err)).Inc()
			if err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			written[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var done []string
		for i, ok := range written {
			if ok {
				done = append(done, keys[i])
			}
		}
		u.rollback(ctx, "upload", done)
		return err
	}
	return nil
}

// rollback deletes keys after a failed write. Failures are logged only.
func (u uploader) rollback(ctx context.Context, stage string, keys []string) {
	if len(keys) == 0 {
		return
	}
	metrics.Rollbacks.WithLabelValues(u.rules.kind, stage).Inc()
	if err := u.remove(ctx, keys); err != nil {
		u.logger.Error().Err(err).Strs("keys", keys).Str("stage", stage).Msg("Rollback of uploaded images failed")
	}
}

// remove deletes keys, detached from request cancellation.
func (u uploader) remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := u.blobs.Delete(context.WithoutCancel(ctx), keys...)
	metrics.BlobOperations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	return err
}

// discard deletes blobs that are no longer referenced. Failures are logged only.
func (u uploader) discard(ctx context.Context, id string, keys []string) {
	if err := u.remove(ctx, keys); err != nil {
		u.logger.Warn().Err(err).Str("id", id).Strs("keys", keys).Msg("Failed to delete images")
	}
}
