// Package export uploads a CSV snapshot of the canonical table to S3 after a
// completed build.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// ObjectPutter is the subset of *s3.Client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter writes snapshots to bucket under prefix.
type S3Exporter struct {
	client ObjectPutter
	bucket string
	prefix string
	log    *logger.Logger
}

// NewS3Exporter creates an exporter. Use s3.NewFromConfig for client.
func NewS3Exporter(client ObjectPutter, bucket, prefix string) *S3Exporter {
	return &S3Exporter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.Default(),
	}
}

// Key returns the object key for a run.
func (e *S3Exporter) Key(runID string) string {
	return path.Join(e.prefix, fmt.Sprintf("clean-master-%s.csv", runID))
}

// Export renders t as CSV and uploads it. It returns the object key.
func (e *S3Exporter) Export(ctx context.Context, t sheet.Table, runID string) (string, error) {
	var buf bytes.Buffer
	if err := sheet.WriteCSV(ctx, &buf, t); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}

	key := e.Key(runID)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", e.bucket, key, err)
	}
	e.log.Info("exported canonical table", "bucket", e.bucket, "key", key, "bytes", buf.Len())
	return key, nil
}
