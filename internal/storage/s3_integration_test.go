//go:build integration
// +build integration

// The build tag 'integration' allows separating integration tests from unit tests.
// Run unit tests with: go test ./...
// Run integration tests with: go test -tags=integration ./...

package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioUsername = "admin"
	minioPassword = "password"

	s3TestBucket = "test-bucket"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupTestObjectStore(t *testing.T, ctx context.Context) *storage.S3ObjectStore {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	objectStore, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        endpoint,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	require.NoError(t, objectStore.CreateBucket(ctx, s3TestBucket))
	// Creating an existing bucket must be a no-op.
	require.NoError(t, objectStore.CreateBucket(ctx, s3TestBucket))

	return objectStore
}

func TestS3ObjectStore_PutAndGetObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	key := "photos/a.png"
	content := []byte("test photo bytes")

	require.NoError(t, objectStore.PutObject(ctx, s3TestBucket, key, bytes.NewReader(content)))

	data, err := objectStore.GetObject(ctx, s3TestBucket, key)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = objectStore.GetObject(ctx, s3TestBucket, "photos/missing.png")
	assert.Error(t, err)
}

func TestS3ObjectStore_ListObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	files := []string{"in/a.png", "in/sub/b.jpg", "other/c.png"}
	for _, file := range files {
		require.NoError(t, objectStore.PutObject(ctx, s3TestBucket, file, bytes.NewReader([]byte("content: "+file))))
	}

	objs, err := objectStore.ListObjects(ctx, s3TestBucket, "in/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	for _, obj := range objs {
		assert.Equal(t, int64(len("content: "+obj.Name)), obj.Size)
	}

	all, err := objectStore.ListObjects(ctx, s3TestBucket, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestS3ObjectStore_IterObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	files := []string{"iter/a.png", "iter/b.png"}
	for _, file := range files {
		require.NoError(t, objectStore.PutObject(ctx, s3TestBucket, file, bytes.NewReader([]byte("x"))))
	}

	var names []string
	for obj, err := range objectStore.IterObjects(ctx, s3TestBucket, "iter/") {
		require.NoError(t, err)
		names = append(names, obj.Name)
	}
	assert.ElementsMatch(t, files, names)
}

func TestS3ObjectStore_IterObjectsMissingBucket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	// Iteration over a missing bucket surfaces the error and stops, even when
	// the consumer keeps ranging.
	errorCount := 0
	for _, err := range objectStore.IterObjects(ctx, "no-such-bucket", "") {
		if err != nil {
			errorCount++
		}
	}
	assert.Equal(t, 1, errorCount)
}

func TestS3ObjectStore_DeleteObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	files := []string{"del/file1.png", "del/sub/file2.png", "keep/file3.png"}
	for _, file := range files {
		require.NoError(t, objectStore.PutObject(ctx, s3TestBucket, file, bytes.NewReader([]byte("content: "+file))))
	}

	objs, err := objectStore.ListObjects(ctx, s3TestBucket, "del/")
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	require.NoError(t, objectStore.DeleteObjects(ctx, s3TestBucket, "del/"))

	newObjs, err := objectStore.ListObjects(ctx, s3TestBucket, "del/")
	require.NoError(t, err)
	assert.Len(t, newObjs, 0)

	kept, err := objectStore.ListObjects(ctx, s3TestBucket, "keep/")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestS3ObjectStore_DownloadObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	key := "to-download/a.png"
	content := []byte("downloadable photo")
	require.NoError(t, objectStore.PutObject(ctx, s3TestBucket, key, bytes.NewReader(content)))

	dest := filepath.Join(t.TempDir(), "nested", "a.png")
	require.NoError(t, objectStore.DownloadObject(ctx, s3TestBucket, key, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}
