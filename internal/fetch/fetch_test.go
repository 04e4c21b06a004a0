package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"photo-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForURL(t *testing.T) {
	key, err := keyForURL("https://example.com/photos/sunset.png", 0)
	require.NoError(t, err)
	assert.Equal(t, "0000_sunset.png", key)

	key, err = keyForURL("https://other.com/sunset.png", 12)
	require.NoError(t, err)
	assert.Equal(t, "0012_sunset.png", key)

	_, err = keyForURL("https://example.com/", 0)
	assert.Error(t, err)
}

func TestFetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png":
			w.Write([]byte("photo a")) // nolint:errcheck
		case "/b.jpg":
			w.Write([]byte("photo b")) // nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "bucket"))

	fetcher := NewFetcher()

	keys, err := fetcher.FetchAll(ctx, store, "bucket", "fetched/job-1", []string{
		server.URL + "/a.png",
		server.URL + "/b.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fetched/job-1/0000_a.png", "fetched/job-1/0001_b.jpg"}, keys)

	data, err := store.GetObject(ctx, "bucket", "fetched/job-1/0000_a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("photo a"), data)
}

func TestFetchAllAbortsOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			w.Write([]byte("ok")) // nolint:errcheck
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	fetcher := NewFetcher()

	_, err = fetcher.FetchAll(context.Background(), store, "bucket", "p", []string{
		server.URL + "/ok.png",
		server.URL + "/missing.png",
	})
	assert.Error(t, err)
}
