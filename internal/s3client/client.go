// Package s3client stores uploaded note and task images in an S3-compatible
// bucket and hands back URLs the browser can load directly.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kuitang/notedesk/internal/errs"
)

// Keys are content-addressed by a fresh uuid, so objects never change.
const immutableCacheControl = "public, max-age=31536000, immutable"

// Config selects the bucket. Endpoint and credentials are optional; without
// them the default AWS chain applies.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	UsePathStyle    bool
}

// Client reads and writes objects in one bucket.
type Client struct {
	api     *s3.Client
	bucket  string
	baseURL string
}

// New connects to the bucket described by cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errs.New(errs.InvalidArgument, "s3 bucket name is required")
	}
	api, err := newAPI(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewFromS3Client(api, cfg.BucketName, cfg.PublicURL), nil
}

func newAPI(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(static))
	}
	sdk, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load aws config", err)
	}
	return s3.NewFromConfig(sdk, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewFromS3Client wraps an already configured SDK client.
func NewFromS3Client(api *s3.Client, bucket, publicURL string) *Client {
	return &Client{api: api, bucket: bucket, baseURL: strings.TrimRight(publicURL, "/")}
}

// PutObject writes data under key as a publicly readable object.
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(immutableCacheControl),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "put object "+key, err)
	}
	return nil
}

// GetObject returns the bytes at key, or an errs.NotFound error.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if missing(err) {
			return nil, errs.New(errs.NotFound, "object not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "get object "+key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "read object "+key, err)
	}
	return data, nil
}

// DeleteObject removes key. Deleting a missing key succeeds.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !missing(err) {
		return errs.Wrap(errs.Unavailable, "delete object "+key, err)
	}
	return nil
}

// GetPublicURL is the browser-facing URL of key. Each path segment is escaped.
func (c *Client) GetPublicURL(key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// KeyFromURL is the inverse of GetPublicURL. ok is false for URLs outside
// this bucket.
func (c *Client) KeyFromURL(u string) (key string, ok bool) {
	rest, ok := strings.CutPrefix(u, c.baseURL+"/")
	if !ok || rest == "" {
		return "", false
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}

// BucketName returns the configured bucket.
func (c *Client) BucketName() string {
	return c.bucket
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", errs.New(errs.InvalidArgument, "invalid object key")
	}
	return key, nil
}

func missing(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
