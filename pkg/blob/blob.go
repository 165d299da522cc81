package blob

import (
	"context"
	"io"
	"path"
	"strings"
)

// Store defines path-addressable object storage for uploaded images.
type Store interface {
	// Put writes r under key. It never overwrites: an existing key yields ObjectExistsError.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// PublicURL resolves key to a URL clients can fetch without credentials.
	PublicURL(key string) string
}

// Initializer is implemented by stores that need to provision their
// container (bucket, directory) before first use.
type Initializer interface {
	Init(ctx context.Context) error
}

// ObjectExistsError is returned when writing a key that is already stored.
type ObjectExistsError struct {
	Key string
}

func (e ObjectExistsError) Error() string {
	return "object already exists: " + e.Key
}

// InvalidKeyError is returned for keys that are empty, absolute or escape their prefix.
type InvalidKeyError struct {
	Key string
}

func (e InvalidKeyError) Error() string {
	return "invalid object key: " + e.Key
}

// ValidateKey rejects keys that are not clean relative slash paths.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return InvalidKeyError{Key: key}
	}
	if path.Clean(key) != key {
		return InvalidKeyError{Key: key}
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return InvalidKeyError{Key: key}
		}
	}
	return nil
}

// JoinURL appends key to base with exactly one separating slash.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
