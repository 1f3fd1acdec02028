package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/kuitang/notedesk/internal/errs"
)

// NewInMemory serves a gofakes3 bucket on a loopback port. Objects are
// readable over plain HTTP at GetPublicURL until stop is called.
func NewInMemory(ctx context.Context, bucket string) (client *Client, stop func(), err error) {
	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())

	api, err := newAPI(ctx, Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "local-key",
		SecretAccessKey: "local-secret",
		UsePathStyle:    true,
	})
	if err != nil {
		ts.Close()
		return nil, nil, err
	}
	if _, err := api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		ts.Close()
		return nil, nil, errs.Wrap(errs.Internal, "create bucket "+bucket, err)
	}
	// path-style: /<bucket>/<key>
	return NewFromS3Client(api, bucket, ts.URL+"/"+bucket), ts.Close, nil
}

// TestClient is NewInMemory bound to the lifetime of t.
func TestClient(t testing.TB, bucket string) *Client {
	t.Helper()
	client, stop, err := NewInMemory(context.Background(), bucket)
	if err != nil {
		t.Fatalf("start in-memory s3: %v", err)
	}
	t.Cleanup(stop)
	return client
}
