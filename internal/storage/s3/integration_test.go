//go:build integration

package s3

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("DATAWISE_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("DATAWISE_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, config.ObjectStoreConfig{
		Endpoint:         endpoint,
		Region:           envOr("DATAWISE_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("DATAWISE_TEST_S3_BUCKET", "datawise-it"),
		AccessKeyID:      envOr("DATAWISE_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("DATAWISE_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	key, err := storage.BuildDatasetPath("roundtrip")
	if err != nil {
		t.Fatalf("BuildDatasetPath() error = %v", err)
	}
	payload := []byte("datawise-integration")
	if _, err := storage.PutBytes(ctx, store, key, payload, ""); err != nil {
		t.Fatalf("PutBytes() error = %v", err)
	}

	got, err := storage.ReadAll(ctx, store, key)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadAll() = %q, want %q", string(got), string(payload))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
