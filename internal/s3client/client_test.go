package s3client

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notedesk/internal/errs"
)

func TestClient_PutGetDelete(t *testing.T) {
	c := TestClient(t, "notedesk-test")
	ctx := context.Background()

	require.NoError(t, c.PutObject(ctx, "images/u1/a.png", []byte("png-bytes"), "image/png"))
	got, err := c.GetObject(ctx, "images/u1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)

	require.NoError(t, c.DeleteObject(ctx, "images/u1/a.png"))
	_, err = c.GetObject(ctx, "images/u1/a.png")
	assert.Equal(t, errs.NotFound, errs.CodeOf(err), "got %v", err)

	// Deleting again is not an error.
	require.NoError(t, c.DeleteObject(ctx, "images/u1/a.png"))
}

func TestClient_RejectsTraversalKeys(t *testing.T) {
	c := NewFromS3Client(nil, "bucket", "https://img.example.com")
	for _, key := range []string{"", "/", "images/../secret"} {
		err := c.PutObject(context.Background(), key, []byte("x"), "image/png")
		assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err), "key %q", key)
	}
}

func TestClient_KeyFromURL(t *testing.T) {
	c := NewFromS3Client(nil, "bucket", "https://img.example.com/bucket/")
	key, ok := c.KeyFromURL(c.GetPublicURL("images/u 1/a.png"))
	require.True(t, ok)
	assert.Equal(t, "images/u 1/a.png", key)

	_, ok = c.KeyFromURL("https://elsewhere.example.com/bucket/images/a.png")
	assert.False(t, ok)
}

func TestClient_PublicURLServesObject(t *testing.T) {
	c := TestClient(t, "notedesk-test")
	ctx := context.Background()
	require.NoError(t, c.PutObject(ctx, "images/u1/b.gif", []byte("GIF89a"), "image/gif"))

	resp, err := http.Get(c.GetPublicURL("images/u1/b.gif"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "GIF89a", string(body))
}

func testGetPublicURL_JoinsKey(t *rapid.T) {
	base := "https://" + rapid.StringMatching(`[a-z]{3,10}\.[a-z]{2,5}`).Draw(t, "host")
	if rapid.Bool().Draw(t, "slash") {
		base += "/"
	}
	key := rapid.StringMatching(`/?[a-z0-9]{1,8}(/[a-z0-9]{1,8}){0,3}`).Draw(t, "key")

	c := NewFromS3Client(nil, "bucket", base)
	got := c.GetPublicURL(key)
	want := base
	if want[len(want)-1] == '/' {
		want = want[:len(want)-1]
	}
	if key[0] == '/' {
		key = key[1:]
	}
	want += "/" + key
	if got != want {
		t.Fatalf("GetPublicURL(%q) = %q, want %q", key, got, want)
	}
}

func TestGetPublicURL_JoinsKey(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testGetPublicURL_JoinsKey)
}
