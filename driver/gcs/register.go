package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gobeaver/nodefs"
)

func init() {
	nodefs.RegisterDriver("gcs", func(cfg *nodefs.Config) (nodefs.FileSystem, error) {
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS bucket is required")
		}

		// without a credentials file the client falls back to
		// GOOGLE_APPLICATION_CREDENTIALS or the default credentials
		var opts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile)) //nolint:staticcheck
		}

		client, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}

		return New(client, cfg.GCSBucket, WithPrefix(cfg.GCSPrefix)), nil
	})
}
