package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/datawise/datawise/internal/storage"
)

func TestPutUsesPrefixAndContentType(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("datawise", "/datasets/", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/ds-1/table.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "datawise" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "datasets/ds-1/table.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("datawise", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "..", "a/../../b", " "} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected validation error", key)
		}
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := NewWithClient("datawise", "", &fakeClient{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Get(context.Background(), "ds-1/table.parquet")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestReadAllReturnsObjectBytes(t *testing.T) {
	store, err := NewWithClient("datawise", "datasets", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	data, err := storage.ReadAll(context.Background(), store, "ds-1/table.parquet")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "datasets/ds-1/table.parquet" {
		t.Fatalf("ReadAll() = %q", string(data))
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("datawise", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestCheckFailsWhenBucketMissing(t *testing.T) {
	store, err := NewWithClient("datawise", "", &fakeClient{bucketExists: false})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Check(context.Background()); err == nil {
		t.Fatal("Check() expected error for missing bucket")
	}

	store, _ = NewWithClient("datawise", "", &fakeClient{bucketExists: true})
	if err := store.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	store, err := NewWithClient("datawise", "", &fakeClient{deleteErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "missing/table.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://localhost:9000", useSSL: true, wantHost: "localhost:9000", wantSecure: true},
		{raw: "localhost:9000", wantHost: "localhost:9000"},
		{raw: "ftp://minio", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range tests {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastContentType    string
	bucketExists       bool
	createBucketCalled bool
	getErr             error
	deleteErr          error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
