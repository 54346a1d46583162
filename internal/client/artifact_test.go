package client_test

import (
	"bytes"
	"context"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/testutils"
)

func TestArtifactPaths(t *testing.T) {
	tests := []struct {
		artifact client.Artifact
		path     string
		file     string
	}{
		{client.CACertificate("1001", client.FormatPEM), "/ca/1001-certificate.pem", "1001-certificate.pem"},
		{client.CACertificate("1001", client.FormatDER), "/ca/1001-certificate.cer", "1001-certificate.cer"},
		{client.CACRL("1001", client.FormatPEM), "/ca/1001-crl.pem", "1001-crl.pem"},
		{client.CACRL("1001", client.FormatDER), "/ca/1001-crl.crl", "1001-crl.crl"},
		{client.Certificate("1001", "2001", client.FormatPEM), "/ca/1001/cert/2001-certificate.pem", "2001-certificate.pem"},
		{client.Certificate("1001", "2001", client.FormatDER), "/ca/1001/cert/2001-certificate.cer", "2001-certificate.cer"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.NoError(t, tt.artifact.Validate())
			assert.Equal(t, tt.path, tt.artifact.Path())
			assert.Equal(t, tt.file, tt.artifact.FileName())
		})
	}
}

func TestArtifactValidate(t *testing.T) {
	assert.ErrorIs(t, client.CACRL("..", client.FormatPEM).Validate(), client.ErrInvalidID)
	assert.ErrorIs(t, client.Certificate("1001", ".", client.FormatPEM).Validate(), client.ErrInvalidID)
	assert.Error(t, client.Artifact{CAID: "1001", CertID: "2001", Kind: client.ArtifactCRL, Format: client.FormatPEM}.Validate())
	assert.Error(t, client.CACertificate("1001", "p12").Validate())
	assert.Error(t, client.Artifact{CAID: "1001", Kind: "private-key", Format: client.FormatPEM}.Validate())
}

func TestDownload(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.AddCert("1001", "2001", "a.example.com")
	f.SetRevoked("1001", "2001", true)
	c := newClient(t, f)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, client.CACRL("1001", client.FormatPEM), &buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	block, _ := pem.Decode(buf.Bytes())
	require.NotNil(t, block)
	assert.Equal(t, "X509 CRL", block.Type)
	assert.Equal(t, "crl 1001: 2001", string(block.Bytes))

	buf.Reset()
	_, err = c.Download(ctx, client.Certificate("1001", "2001", client.FormatDER), &buf)
	require.NoError(t, err)
	assert.Equal(t, "certificate 2001", buf.String())

	buf.Reset()
	_, err = c.Download(ctx, client.CACertificate("1001", client.FormatPEM), &buf)
	require.NoError(t, err)
	block, _ = pem.Decode(buf.Bytes())
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)

	assert.Equal(t, []string{
		"GET /ca/1001-crl.pem",
		"GET /ca/1001/cert/2001-certificate.cer",
		"GET /ca/1001-certificate.pem",
	}, f.Requests())
}

func TestDownload_FailureWritesNothing(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	f.Fail(http.MethodGet, "/ca/1001-crl.crl", http.StatusInternalServerError)
	c := newClient(t, f)

	var buf bytes.Buffer
	_, err := c.Download(context.Background(), client.CACRL("1001", client.FormatDER), &buf)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "/ca/1001-crl.crl", apiErr.Path)
	assert.Zero(t, buf.Len())

	_, err = c.Download(context.Background(), client.Certificate("1001", "9999", client.FormatPEM), &buf)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestDownloadFile(t *testing.T) {
	f := testutils.NewFakeAuthority(t)
	f.AddCA("1001", "CA1", true)
	c := newClient(t, f)
	dir := t.TempDir()

	target := filepath.Join(dir, "ca.cer")
	n, err := c.DownloadFile(context.Background(), client.CACertificate("1001", client.FormatDER), target)
	require.NoError(t, err)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "certificate 1001", string(raw))
	assert.EqualValues(t, len(raw), n)

	missing := filepath.Join(dir, "missing.pem")
	_, err = c.DownloadFile(context.Background(), client.CACertificate("404", client.FormatPEM), missing)
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.NoFileExists(t, missing)
}
