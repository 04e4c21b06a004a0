// Ingest walks a local photo directory and uploads its contents to an object
// store bucket, skipping duplicate files by content hash. The uploaded prefix
// can then be used as the s3 source of a processing job.
package main

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"

	"photo-backend/cmd"
	"photo-backend/internal/imaging"
	"photo-backend/internal/storage"
	"photo-backend/pkg/checksum"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

type IngestConfig struct {
	SourceDir string `env:"SOURCE_DIR,notEmpty,required"`
	Bucket    string `env:"BUCKET,notEmpty,required"`
	Prefix    string `env:"PREFIX"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func collectPhotos(dir string) ([]string, error) {
	var photos []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !imaging.IsSupportedKey(p) {
			return nil
		}
		photos = append(photos, p)
		return nil
	})
	return photos, err
}

func main() {
	cmd.LoadEnvFile()

	var cfg IngestConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	ctx := context.Background()

	if err := store.CreateBucket(ctx, cfg.Bucket); err != nil {
		log.Fatalf("Failed to create bucket %s: %v", cfg.Bucket, err)
	}

	photos, err := collectPhotos(cfg.SourceDir)
	if err != nil {
		log.Fatalf("Failed to scan source directory: %v", err)
	}
	if len(photos) == 0 {
		log.Fatalf("No photos found under %s", cfg.SourceDir)
	}

	bar := progressbar.Default(int64(len(photos)), "uploading photos")

	seen := make(map[string]string)
	uploaded, skipped := 0, 0

	for _, photo := range photos {
		digest, err := checksum.File(photo)
		if err != nil {
			log.Fatalf("Failed to hash %s: %v", photo, err)
		}

		if dup, ok := seen[digest]; ok {
			log.Printf("skipping %s: duplicate of %s", photo, dup)
			skipped++
			bar.Add(1) // nolint:errcheck
			continue
		}
		seen[digest] = photo

		rel, err := filepath.Rel(cfg.SourceDir, photo)
		if err != nil {
			log.Fatalf("Failed to resolve path %s: %v", photo, err)
		}

		file, err := os.Open(photo)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", photo, err)
		}

		key := path.Join(cfg.Prefix, filepath.ToSlash(rel))
		if err := store.PutObject(ctx, cfg.Bucket, key, file); err != nil {
			file.Close()
			log.Fatalf("Failed to upload %s: %v", photo, err)
		}
		file.Close()

		uploaded++
		bar.Add(1) // nolint:errcheck
	}

	log.Printf("done: uploaded %d photos to s3://%s/%s (%d duplicates skipped)", uploaded, cfg.Bucket, cfg.Prefix, skipped)
}
