package app

import (
	"context"
	"fmt"
	"os"

	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/metastore"
)

// defaultRegistry registers every built-in backend. The bolt backends share
// one database file with the deletion ledger.
func (a *App) defaultRegistry() *config.Registry {
	r := config.NewRegistry()

	r.RegisterMetadata(config.MetadataFile, func(_ context.Context, s config.StorageConfig) (metastore.Store, error) {
		if err := os.MkdirAll(s.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return metastore.NewFileStore(s.PrefsPath()), nil
	})
	r.RegisterMetadata(config.MetadataBolt, func(_ context.Context, _ config.StorageConfig) (metastore.Store, error) {
		db, err := a.openBolt()
		if err != nil {
			return nil, err
		}
		return metastore.NewBoltStore(db)
	})
	r.RegisterMetadata(config.MetadataPostgres, func(ctx context.Context, s config.StorageConfig) (metastore.Store, error) {
		pool, err := a.openPool(ctx, s.Metadata.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store := metastore.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	})
	r.RegisterMetadata(config.MetadataMemory, func(context.Context, config.StorageConfig) (metastore.Store, error) {
		return metastore.NewMemStore(), nil
	})

	r.RegisterBlob(config.BlobFS, func(_ context.Context, s config.StorageConfig) (blobstore.Store, error) {
		return blobstore.NewFSStore(s.BlobDir())
	})
	r.RegisterBlob(config.BlobBolt, func(_ context.Context, _ config.StorageConfig) (blobstore.Store, error) {
		db, err := a.openBolt()
		if err != nil {
			return nil, err
		}
		return blobstore.NewBoltStore(db)
	})
	r.RegisterBlob(config.BlobGCS, func(ctx context.Context, s config.StorageConfig) (blobstore.Store, error) {
		return blobstore.NewGCSStore(ctx, s.Blob.GCSBucket)
	})
	r.RegisterBlob(config.BlobMemory, func(context.Context, config.StorageConfig) (blobstore.Store, error) {
		return blobstore.NewMemStore(), nil
	})

	return r
}
