// Package fetch downloads photos from HTTP sources into the object store so
// URL-sourced jobs can be processed the same way as uploads.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"photo-backend/internal/storage"

	"github.com/go-resty/resty/v2"
)

type Fetcher struct {
	client *resty.Client
}

func NewFetcher() *Fetcher {
	client := resty.New().
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second)

	return &Fetcher{client: client}
}

// keyForURL derives a stable object key from a source URL. The index prefix
// keeps distinct URLs with identical filenames from colliding.
func keyForURL(rawURL string, index int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", rawURL, err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("source url %q has no file name", rawURL)
	}

	return fmt.Sprintf("%04d_%s", index, name), nil
}

// FetchAll downloads each URL into bucket under prefix and returns the stored
// object keys. A failed URL aborts the whole fetch; the scan task will be
// retried or marked failed by the caller.
func (f *Fetcher) FetchAll(ctx context.Context, store storage.ObjectStore, bucket, prefix string, urls []string) ([]string, error) {
	keys := make([]string, 0, len(urls))

	for i, rawURL := range urls {
		key, err := keyForURL(rawURL, i)
		if err != nil {
			return nil, err
		}

		resp, err := f.client.R().SetContext(ctx).Get(rawURL)
		if err != nil {
			return nil, fmt.Errorf("error fetching %q: %w", rawURL, err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("error fetching %q: status %d", rawURL, resp.StatusCode())
		}

		fullKey := path.Join(prefix, key)
		if err := store.PutObject(ctx, bucket, fullKey, bytes.NewReader(resp.Body())); err != nil {
			return nil, fmt.Errorf("error storing fetched photo %q: %w", rawURL, err)
		}

		keys = append(keys, fullKey)
	}

	return keys, nil
}
