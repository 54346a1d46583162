package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss, err := NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	ver, err := NewVerifier(testSecret)
	require.NoError(t, err)

	token, err := iss.Issue("alice", []string{RoleIssuer})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "compact serialization")

	claims, err := ver.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{RoleIssuer}, claims.Roles)
	assert.Greater(t, claims.Expiry, claims.IssuedAt)
}

func TestWeakSecretRejected(t *testing.T) {
	_, err := NewIssuer([]byte("short"), time.Hour)
	assert.ErrorIs(t, err, ErrWeakSecret)
	_, err = NewVerifier([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestVerify_Rejections(t *testing.T) {
	iss, err := NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	ver, err := NewVerifier(testSecret)
	require.NoError(t, err)

	_, err = iss.Issue("", nil)
	assert.Error(t, err)

	_, err = ver.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("mallory", []string{RoleAdmin})
	require.NoError(t, err)
	_, err = ver.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong key")

	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := iss.Issue("alice", []string{RoleIssuer})
	require.NoError(t, err)
	_, err = ver.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

func TestHasRole(t *testing.T) {
	c := &Claims{Roles: []string{RoleRevoker}}
	assert.True(t, c.HasRole(RoleRevoker))
	assert.False(t, c.HasRole(RoleIssuer))

	admin := &Claims{Roles: []string{RoleAdmin}}
	assert.True(t, admin.HasRole(RoleIssuer))
	assert.True(t, admin.HasRole(RoleRevoker))
	assert.True(t, admin.HasRole(RoleAdmin))

	assert.False(t, (&Claims{}).HasRole(RoleIssuer))
}

func TestTokenMiddleware(t *testing.T) {
	iss, err := NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	ver, err := NewVerifier(testSecret)
	require.NoError(t, err)

	issuerToken, err := iss.Issue("alice", []string{RoleIssuer})
	require.NoError(t, err)
	revokerToken, err := iss.Issue("bob", []string{RoleRevoker})
	require.NoError(t, err)
	adminToken, err := iss.Issue("root", []string{RoleAdmin})
	require.NoError(t, err)

	e := echo.New()
	e.POST("/issue", func(c echo.Context) error {
		return c.String(http.StatusOK, ClaimsFrom(c).Subject)
	}, TokenMiddleware(ver, RoleIssuer))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
		{"wrong role", "Bearer " + revokerToken, http.StatusForbidden, ""},
		{"right role", "Bearer " + issuerToken, http.StatusOK, "alice"},
		{"admin", "Bearer " + adminToken, http.StatusOK, "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/issue", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
