// Package manager opens and owns the metadata repository and the blob
// stores selected by configuration.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"folio/pkg/blob"
	"folio/pkg/blob/local"
	"folio/pkg/blob/s3"
	"folio/pkg/config"
	"folio/pkg/log"
	"folio/pkg/repository"
	"folio/pkg/repository/cache"
	"folio/pkg/repository/postgres"
	"folio/pkg/repository/sqlite"
)

const dataDirPerm = 0o750

// Manager holds the storage backends of one server process.
type Manager struct {
	Repo         repository.Repository
	ProjectBlobs blob.Store
	ServiceBlobs blob.Store
	// FilesDir is the local blob root, empty for S3.
	FilesDir string
}

// seams for tests
var (
	openSQLite = func(ctx context.Context, cfg config.DatabaseConfig) (repository.Repository, error) {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, dataDirPerm); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	}

	openPostgres = func(ctx context.Context, cfg config.DatabaseConfig) (repository.Repository, error) {
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, cfg.DSN); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	}

	newS3Store = func(ctx context.Context, opts s3.Options) (blob.Store, error) {
		return s3.New(ctx, opts)
	}
)

// Open builds the repository and both blob stores. Bucket provisioning
// failures are logged and do not stop startup.
func Open(ctx context.Context, cfg *config.Config) (*Manager, error) {
	repo, err := OpenRepository(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	m := &Manager{Repo: cache.New(repo, cfg.Cache.RecordTTL)}

	if err := m.openBlobs(ctx, cfg.Storage); err != nil {
		_ = m.Repo.Close()
		return nil, err
	}

	log.Info().
		Str("database", cfg.Database.Driver).
		Str("storage", cfg.Storage.Driver).
		Dur("record_cache_ttl", cfg.Cache.RecordTTL).
		Msg("Storage backends ready")

	return m, nil
}

// OpenRepository opens the metadata store for cfg.Driver without caching.
func OpenRepository(ctx context.Context, cfg config.DatabaseConfig) (repository.Repository, error) {
	var (
		repo repository.Repository
		err  error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		repo, err = openPostgres(ctx, cfg)
	case config.DriverSQLite:
		repo, err = openSQLite(ctx, cfg)
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", cfg.Driver, err)
	}
	return repo, nil
}

func (m *Manager) openBlobs(ctx context.Context, cfg config.StorageConfig) error {
	switch cfg.Driver {
	case config.StorageS3:
		var err error
		if m.ProjectBlobs, err = newS3Store(ctx, s3Options(cfg, cfg.ProjectsBucket)); err != nil {
			return fmt.Errorf("open project bucket: %w", err)
		}
		if m.ServiceBlobs, err = newS3Store(ctx, s3Options(cfg, cfg.ServicesBucket)); err != nil {
			return fmt.Errorf("open service bucket: %w", err)
		}
	case config.StorageLocal:
		m.FilesDir = cfg.LocalDir
		m.ProjectBlobs = local.New(filepath.Join(cfg.LocalDir, cfg.ProjectsBucket), blob.JoinURL(cfg.PublicBaseURL, cfg.ProjectsBucket))
		m.ServiceBlobs = local.New(filepath.Join(cfg.LocalDir, cfg.ServicesBucket), blob.JoinURL(cfg.PublicBaseURL, cfg.ServicesBucket))
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	Provision(ctx, m.ProjectBlobs, m.ServiceBlobs)
	return nil
}

func s3Options(cfg config.StorageConfig, bucket string) s3.Options {
	opts := s3.Options{
		Bucket:       bucket,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
		CacheControl: cfg.CacheControl,
	}
	if cfg.CDNBaseURL != "" {
		opts.PublicBaseURL = blob.JoinURL(cfg.CDNBaseURL, bucket)
	}
	return opts
}

// Provision initialises every store implementing blob.Initializer.
// Errors are logged only.
func Provision(ctx context.Context, stores ...blob.Store) {
	for _, store := range stores {
		initializer, ok := store.(blob.Initializer)
		if !ok {
			continue
		}
		if err := initializer.Init(ctx); err != nil {
			log.Warn().Err(err).Msg("Blob store initialisation failed, continuing")
		}
	}
}

// Ping checks the repository.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Repo.Ping(ctx)
}

func (m *Manager) Close() error {
	if m.Repo == nil {
		return nil
	}
	return m.Repo.Close()
}
