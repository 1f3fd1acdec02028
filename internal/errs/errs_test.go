package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{Unauthenticated, InvalidArgument, NotFound, AlreadyExists, RateLimited, Unavailable, Internal}

func testCodeSurvivesWrapping(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	depth := rapid.IntRange(0, 3).Draw(t, "depth")

	var err error
	if rapid.Bool().Draw(t, "withCause") {
		err = Wrap(code, message, errors.New("sqlite: disk I/O error at /var/lib/notedesk.db"))
	} else {
		err = New(code, message)
	}
	for i := 0; i < depth; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}

	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf = %q, want %q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf = %q, want %q", got, message)
	}
	if !Is(err, code) {
		t.Fatalf("Is(%q) = false", code)
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeSurvivesWrapping)
}

func FuzzCodeSurvivesWrapping(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testCodeSurvivesWrapping))
}

func TestUncodedErrorsStayInternal(t *testing.T) {
	t.Parallel()
	raw := errors.New("open /etc/secret: permission denied")
	if CodeOf(raw) != Internal || MessageOf(raw) != "internal error" {
		t.Fatalf("raw error leaked: code=%q message=%q", CodeOf(raw), MessageOf(raw))
	}
	if CodeOf(nil) != Internal || MessageOf(nil) != string(Internal) {
		t.Fatalf("nil fallbacks: code=%q message=%q", CodeOf(nil), MessageOf(nil))
	}
	for _, code := range allCodes {
		if Is(nil, code) {
			t.Fatalf("Is(nil, %q) = true", code)
		}
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := Wrap(Unavailable, "store unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is lost the cause")
	}
	if err.Error() != "store unavailable" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if got := (&Error{Code: NotFound}).Error(); got != "not_found" {
		t.Fatalf("bare Error() = %q", got)
	}
}

func testHTTPStatusRoundTrip(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	if got := FromHTTPStatus(HTTPStatus(code)); got != code {
		t.Fatalf("FromHTTPStatus(HTTPStatus(%q)) = %q", code, got)
	}
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testHTTPStatusRoundTrip)
}

func TestHTTPStatus_Table(t *testing.T) {
	t.Parallel()
	want := map[Code]int{
		Unauthenticated:      http.StatusUnauthorized,
		InvalidArgument:      http.StatusBadRequest,
		NotFound:             http.StatusNotFound,
		AlreadyExists:        http.StatusConflict,
		RateLimited:          http.StatusTooManyRequests,
		Unavailable:          http.StatusServiceUnavailable,
		Internal:             http.StatusInternalServerError,
		Code("no_such_code"): http.StatusInternalServerError,
	}
	for code, status := range want {
		if got := HTTPStatus(code); got != status {
			t.Fatalf("HTTPStatus(%q) = %d, want %d", code, got, status)
		}
	}
	for _, status := range []int{http.StatusBadGateway, http.StatusGatewayTimeout} {
		if got := FromHTTPStatus(status); got != Unavailable {
			t.Fatalf("FromHTTPStatus(%d) = %q", status, got)
		}
	}
	if got := FromHTTPStatus(http.StatusTeapot); got != Internal {
		t.Fatalf("FromHTTPStatus(418) = %q", got)
	}
}
