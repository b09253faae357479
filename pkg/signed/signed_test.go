package signed

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner() *Signer {
	return New("hunter2", "https://api.example.com")
}

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestBuildVerify_HappyPath(t *testing.T) {
	s := testSigner()

	raw := s.Build("/login", map[string]string{"email": "clippy@example.com"}, 0)
	u := parse(t, raw)

	assert.True(t, strings.HasPrefix(raw, "https://api.example.com/login?"))
	assert.NoError(t, s.Verify("/login", u.Query()))
}

func TestVerify_TamperedQuery(t *testing.T) {
	s := testSigner()

	raw := s.Build("/login", map[string]string{"email": "clippy@example.com"}, 0)
	raw = strings.Replace(raw, "clippy%40", "admin%40", 1)
	u := parse(t, raw)

	assert.ErrorIs(t, s.Verify("/login", u.Query()), ErrInvalidSignature)
}

func TestVerify_MissingSignature(t *testing.T) {
	s := testSigner()
	u := parse(t, "https://api.example.com/login?email=clippy%40example.com")
	assert.ErrorIs(t, s.Verify("/login", u.Query()), ErrInvalidSignature)
}

func TestVerify_WrongPath(t *testing.T) {
	s := testSigner()
	u := parse(t, s.Build("/login", map[string]string{"email": "a@b.c"}, 0))
	assert.ErrorIs(t, s.Verify("/logout", u.Query()), ErrInvalidSignature)
}

func TestBuildVerify_NoQueryParams(t *testing.T) {
	s := testSigner()
	u := parse(t, s.Build("/test", nil, 0))
	assert.NoError(t, s.Verify("/test", u.Query()))
}

func TestVerify_Expired(t *testing.T) {
	s := testSigner()
	u := parse(t, s.Build("/login", map[string]string{"email": "a@b.c"}, -time.Second))
	assert.ErrorIs(t, s.Verify("/login", u.Query()), ErrSignatureExpired)
}

func TestVerify_NotYetExpired(t *testing.T) {
	s := testSigner()
	u := parse(t, s.Build("/login", map[string]string{"email": "a@b.c"}, 15*time.Minute))
	assert.NoError(t, s.Verify("/login", u.Query()))
}

func TestVerify_TamperedExpiry(t *testing.T) {
	s := testSigner()
	u := parse(t, s.Build("/login", map[string]string{"email": "a@b.c"}, -time.Second))

	q := u.Query()
	q.Set("expires", "99999999999")
	assert.ErrorIs(t, s.Verify("/login", q), ErrInvalidSignature)
}

func TestVerify_CanonicalOrderIndependence(t *testing.T) {
	s := testSigner()
	raw := s.Build("/invite", map[string]string{"team": "docs", "email": "a@b.c"}, 0)
	u := parse(t, raw)

	// Reassemble the query in reverse order; verification must not care.
	q := u.Query()
	var parts []string
	for _, k := range []string{"team", "signature", "email"} {
		parts = append(parts, k+"="+url.QueryEscape(q.Get(k)))
	}
	reordered, err := url.ParseQuery(strings.Join(parts, "&"))
	require.NoError(t, err)
	assert.NoError(t, s.Verify("/invite", reordered))
}

func TestVerifyRequest_UsesMatchedPattern(t *testing.T) {
	s := testSigner()
	raw := s.Build("/auth/login", map[string]string{"email": "a@b.c"}, time.Hour)
	u := parse(t, raw)

	mux := http.NewServeMux()
	var got error
	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		got = s.VerifyRequest(r)
	})
	req := httptest.NewRequest(http.MethodGet, "/auth/login?"+u.RawQuery, nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	assert.NoError(t, got)
}
