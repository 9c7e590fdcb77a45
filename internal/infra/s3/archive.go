package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// SnapshotArchive stores raw client-reported billing payloads as objects,
// keeping the full body even when the database row is size-capped.
type SnapshotArchive struct {
	client *minio.Client
	bucket string
}

func NewSnapshotArchive(client *minio.Client, bucket string) *SnapshotArchive {
	return &SnapshotArchive{client: client, bucket: bucket}
}

func (a *SnapshotArchive) Archive(ctx context.Context, key string, payload []byte) error {
	if a.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if key == "" {
		return fmt.Errorf("archive key is required")
	}

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put snapshot object: %w", err)
	}

	return nil
}
