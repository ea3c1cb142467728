package evidence

import (
	"context"
	"fmt"

	"violation-service/internal/config"
)

// Open returns the Store selected by EVIDENCE_DRIVER.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Evidence.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "cloudinary":
		return NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unsupported evidence driver %q", cfg.Evidence.Driver)
	}
}
