// Package images moves inline data-URI images out of rows and into object
// storage, leaving a public URL behind.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/s3client"
)

// MaxImageBytes bounds a decoded upload.
const MaxImageBytes = 5 << 20

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Store offloads images. Implementations return non-data-URI input unchanged.
type Store interface {
	Offload(ctx context.Context, userID, image string) (string, error)
	// Remove deletes an image Offload stored. Other URLs are ignored.
	Remove(ctx context.Context, url string) error
}

// Offload is Store.Offload that tolerates a nil store.
func Offload(ctx context.Context, s Store, userID, image string) (string, error) {
	if s == nil || image == "" {
		return image, nil
	}
	return s.Offload(ctx, userID, image)
}

// Discard removes what Offload stored for input when the row meant to
// reference it was never written. Failures are logged, not returned.
func Discard(ctx context.Context, s Store, stored, input string) {
	if s == nil || stored == "" || stored == input {
		return
	}
	if err := s.Remove(ctx, stored); err != nil {
		obs.From(ctx).With("pkg", "images").Warn("image_discard_failed", "url", stored, "error", err)
	}
}

// IsDataURI reports whether s is an inline data: URI.
func IsDataURI(s string) bool {
	return len(s) > 5 && strings.EqualFold(s[:5], "data:")
}

// ParseDataURI decodes a base64 image data URI into its content type and bytes.
func ParseDataURI(s string) (contentType string, data []byte, err error) {
	if !IsDataURI(s) {
		return "", nil, errs.New(errs.InvalidArgument, "image is not a data URI")
	}
	meta, payload, ok := strings.Cut(s[5:], ",")
	if !ok {
		return "", nil, errs.New(errs.InvalidArgument, "malformed image data URI")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errs.New(errs.InvalidArgument, "image data URI must be base64 encoded")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if _, ok := extensions[mediaType]; !ok {
		return "", nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unsupported image type %q", mediaType))
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return "", nil, errs.New(errs.InvalidArgument, "image exceeds 5 MB")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errs.Wrap(errs.InvalidArgument, "image data URI is not valid base64", err)
	}
	if len(data) == 0 {
		return "", nil, errs.New(errs.InvalidArgument, "image is empty")
	}
	if len(data) > MaxImageBytes {
		return "", nil, errs.New(errs.InvalidArgument, "image exceeds 5 MB")
	}
	return mediaType, data, nil
}

// S3Store uploads images to an S3 bucket.
type S3Store struct {
	client *s3client.Client
}

// NewS3Store creates a store backed by client.
func NewS3Store(client *s3client.Client) *S3Store {
	return &S3Store{client: client}
}

// Offload uploads a data-URI image under images/<userID>/ and returns its
// public URL. Any other value is returned as given.
func (s *S3Store) Offload(ctx context.Context, userID, image string) (string, error) {
	if !IsDataURI(image) {
		return image, nil
	}
	contentType, data, err := ParseDataURI(image)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("images/%s/%s.%s", userID, uuid.NewString(), extensions[contentType])
	if err := s.client.PutObject(ctx, key, data, contentType); err != nil {
		return "", errs.Wrap(errs.Unavailable, "failed to store image", err)
	}
	obs.From(ctx).With("pkg", "images").Debug("image_offloaded", "key", key, "bytes", len(data))
	return s.client.GetPublicURL(key), nil
}

// Remove deletes the object behind url when it lives in this bucket.
func (s *S3Store) Remove(ctx context.Context, url string) error {
	key, ok := s.client.KeyFromURL(url)
	if !ok {
		return nil
	}
	if err := s.client.DeleteObject(ctx, key); err != nil {
		return err
	}
	obs.From(ctx).With("pkg", "images").Debug("image_removed", "key", key)
	return nil
}
