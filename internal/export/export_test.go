package export

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/sheet"
)

type fakeS3 struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3Exporter_Export(t *testing.T) {
	fake := &fakeS3{}
	table := sheet.NewMemoryTable("Clean Master", []string{"platform", "order_id"},
		sheet.Row{"PlatformA", "1001"},
	)

	key, err := NewS3Exporter(fake, "reports", "/clean-master/").Export(context.Background(), table, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "clean-master/clean-master-run-1.csv", key)
	assert.Equal(t, "reports", fake.bucket)
	assert.Equal(t, key, fake.key)
	assert.Equal(t, "text/csv", fake.contentType)
	assert.Equal(t, "platform,order_id\nPlatformA,1001\n", string(fake.body))
}

func TestS3Exporter_NoPrefix(t *testing.T) {
	assert.Equal(t, "clean-master-abc.csv", NewS3Exporter(&fakeS3{}, "b", "").Key("abc"))
}

func TestS3Exporter_UploadError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	table := sheet.NewMemoryTable("Clean Master", []string{"platform"})

	_, err := NewS3Exporter(fake, "reports", "x").Export(context.Background(), table, "run-2")
	assert.ErrorContains(t, err, "access denied")
}
