package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gobeaver/nodefs"
)

func init() {
	nodefs.RegisterDriver("s3", func(cfg *nodefs.Config) (nodefs.FileSystem, error) {
		if cfg.S3Bucket == "" {
			return nil, errors.New("s3: bucket is required")
		}
		client, err := newClient(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return New(client, cfg.S3Bucket, WithPrefix(cfg.S3Prefix)), nil
	})
}

// newClient loads the default AWS chain for the region. Static keys, a
// custom endpoint and path-style addressing apply when configured, which
// is what S3-compatible stores such as MinIO need.
func newClient(ctx context.Context, cfg *nodefs.Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	}), nil
}
