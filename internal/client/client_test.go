package client_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/model"
	"github.com/blockadesystems/caconsole/internal/testutils"
)

func newClient(t *testing.T, f *testutils.FakeAuthority) *client.Client {
	t.Helper()
	c, err := client.New(f.URL, client.Options{Timeout: 5 * time.Second, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := client.New("ftp://ca.example.com", client.Options{})
	assert.Error(t, err)

	_, err = client.New("://nope", client.Options{})
	assert.Error(t, err)
}

func TestNew_RootCAFile(t *testing.T) {
	dir := t.TempDir()

	_, err := client.New("https://ca.example.com", client.Options{RootCAFile: filepath.Join(dir, "missing.pem")})
	assert.Error(t, err, "missing root CA file must fail")

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0600))
	_, err = client.New("https://ca.example.com", client.Options{RootCAFile: garbage})
	assert.Error(t, err, "file without certificates must fail")
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/ca/1001", client.CAPath("1001"))
	assert.Equal(t, "/ca/1001/cert", client.CertsPath("1001"))
	assert.Equal(t, "/ca/1001/cert/2001", client.CertPath("1001", "2001"))
	assert.Equal(t, "/ca/1001/crl", client.CRLPath("1001"))
	assert.Equal(t, "/ca/1001/crl/2001", client.CRLEntryPath("1001", "2001"))
	assert.Equal(t, "/ca/a%2Fb/cert/..", client.CertPath("a/b", ".."), "segments are escaped, never cleaned")
}

func TestDotSegmentIDsAreRejectedBeforeSending(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.AddCert("1001", "2001", "a.example.com")
	f.SetRevoked("1001", "2001", true)
	c := newClient(t, f)
	ctx := context.Background()

	for _, id := range []string{"", ".", ".."} {
		_, err := c.GetCertificate(ctx, "1001", id)
		assert.ErrorIs(t, err, client.ErrInvalidID, "certificate %q", id)

		assert.ErrorIs(t, c.Unrevoke(ctx, "1001", id), client.ErrInvalidID, "unrevoke %q", id)
		assert.ErrorIs(t, c.Revoke(ctx, "1001", id), client.ErrInvalidID, "revoke %q", id)

		_, err = c.GetCA(ctx, id)
		assert.ErrorIs(t, err, client.ErrInvalidID, "CA %q", id)
		_, err = c.ListCertificates(ctx, id)
		assert.ErrorIs(t, err, client.ErrInvalidID)
		_, err = c.GetCRL(ctx, id)
		assert.ErrorIs(t, err, client.ErrInvalidID)
		_, err = c.IssueCertificate(ctx, id, model.CertSpec{Host: "c.example.com"})
		assert.ErrorIs(t, err, client.ErrInvalidID)
	}

	assert.Empty(t, f.Requests(), "nothing may reach the CA API")
	assert.Equal(t, []string{"2001"}, f.Revoked("1001"))
}

func TestReadOperations(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.AddCA("1002", "hidden", false)
	f.AddCert("1001", "2001", "a.example.com")
	f.AddCert("1001", "2002", "b.example.com")
	f.SetRevoked("1001", "2002", true)
	c := newClient(t, f)
	ctx := context.Background()

	cas, err := c.ListCAs(ctx)
	require.NoError(t, err)
	require.Len(t, cas, 1, "hidden CAs are not listed")
	assert.Equal(t, "1001", cas[0].SerialNumber)
	assert.Equal(t, "CA1", cas[0].Name)

	ca, err := c.GetCA(ctx, "1002")
	require.NoError(t, err, "hidden CAs can still be fetched directly")
	assert.False(t, ca.Visible)

	certs, err := c.ListCertificates(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "a.example.com", certs[0].Host)

	cert, err := c.GetCertificate(ctx, "1001", "2002")
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", cert.Host)
	assert.Equal(t, "ski-1001", cert.AuthorityKeyID)

	crl, err := c.GetCRL(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, []string{"2002"}, crl.SerialNumbers)
}

func TestGetCRL_EmptyIsNotNil(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	c := newClient(t, f)

	crl, err := c.GetCRL(context.Background(), "1001")
	require.NoError(t, err)
	assert.NotNil(t, crl.SerialNumbers)
	assert.Empty(t, crl.SerialNumbers)
}

func TestCreateCA_FollowsRedirect(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.SetNextSerial(3001)
	c := newClient(t, f)

	ca, err := c.CreateCA(context.Background(), model.CASpec{Visible: true, Name: "New CA"})
	require.NoError(t, err)
	assert.Equal(t, "3001", ca.SerialNumber)
	assert.Equal(t, "New CA", ca.Name)
	assert.Equal(t, []string{"POST /ca", "GET /ca/3001"}, f.Requests())
}

func TestIssueCertificate_FollowsRedirect(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.SetNextSerial(2003)
	c := newClient(t, f)

	cert, err := c.IssueCertificate(context.Background(), "1001", model.CertSpec{Host: "c.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "2003", cert.SerialNumber)
	assert.Equal(t, "c.example.com", cert.Host)
}

func TestRevokeAndUnrevoke(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.AddCert("1001", "2001", "a.example.com")
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.Revoke(ctx, "1001", "2001"))
	assert.Equal(t, []string{"2001"}, f.Revoked("1001"))

	require.NoError(t, c.Unrevoke(ctx, "1001", "2001"))
	assert.Empty(t, f.Revoked("1001"))
}

func TestUnrevoke_TwiceForAbsentSerialIsIdempotent(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.AddCert("1001", "2001", "a.example.com")
	f.AddCert("1001", "2002", "b.example.com")
	f.SetRevoked("1001", "2002", true)
	c := newClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.Unrevoke(ctx, "1001", "2001"))
	require.NoError(t, c.Unrevoke(ctx, "1001", "2001"))
	assert.Equal(t, []string{"2002"}, f.Revoked("1001"))
}

func TestRevoke_ForeignCertificateFails(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	c := newClient(t, f)

	err := c.Revoke(context.Background(), "1001", "9999")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Equal(t, "/ca/1001/crl", apiErr.Path)
	assert.Contains(t, apiErr.Body, "does not belong")
	assert.Empty(t, f.Revoked("1001"))
}

func TestNotFound(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	c := newClient(t, f)

	_, err := c.GetCA(context.Background(), "404")
	assert.True(t, errors.Is(err, client.ErrNotFound))

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestInjectedFailure(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.Fail(http.MethodGet, "/ca", http.StatusServiceUnavailable)
	c := newClient(t, f)

	_, err := c.ListCAs(context.Background())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.False(t, errors.Is(err, client.ErrNotFound))
}

func TestContextCancelled(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	c := newClient(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListCAs(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBaseURLWithPathPrefix(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)

	// The fake serves at the root; a trailing slash must not double up.
	c, err := client.New(f.URL+"/", client.Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	cas, err := c.ListCAs(context.Background())
	require.NoError(t, err)
	assert.Len(t, cas, 1)
}
