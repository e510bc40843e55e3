package config_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/metastore"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterMetadata(config.MetadataMemory, func(context.Context, config.StorageConfig) (metastore.Store, error) {
		return metastore.NewMemStore(), nil
	})
	r.RegisterBlob(config.BlobMemory, func(context.Context, config.StorageConfig) (blobstore.Store, error) {
		return blobstore.NewMemStore(), nil
	})

	cfg := config.StorageConfig{
		Metadata: config.MetadataConfig{Backend: config.MetadataMemory},
		Blob:     config.BlobConfig{Backend: config.BlobMemory},
	}
	if _, err := r.CreateMetadata(context.Background(), cfg); err != nil {
		t.Errorf("CreateMetadata: %v", err)
	}
	if _, err := r.CreateBlob(context.Background(), cfg); err != nil {
		t.Errorf("CreateBlob: %v", err)
	}

	cfg.Metadata.Backend = config.MetadataPostgres
	if _, err := r.CreateMetadata(context.Background(), cfg); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("unregistered metadata: err = %v", err)
	}
	cfg.Blob.Backend = config.BlobGCS
	if _, err := r.CreateBlob(context.Background(), cfg); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("unregistered blob: err = %v", err)
	}

	if got := r.Backends("metadata"); !slices.Equal(got, []string{config.MetadataMemory}) {
		t.Errorf("Backends(metadata) = %v", got)
	}
}
