package server_test

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/server"
)

func tlsConfig(t *testing.T, selfSigned bool) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TLSCertFile = filepath.Join(dir, "console.crt")
	cfg.TLSKeyFile = filepath.Join(dir, "console.key")
	cfg.TLSSelfSigned = selfSigned
	return cfg
}

func TestEnsureTLSCertificates_Disabled(t *testing.T) {
	certFile, keyFile, err := server.EnsureTLSCertificates(config.Default())
	require.NoError(t, err)
	assert.Empty(t, certFile)
	assert.Empty(t, keyFile)
}

func TestEnsureTLSCertificates_GeneratesOnce(t *testing.T) {
	cfg := tlsConfig(t, true)

	certFile, keyFile, err := server.EnsureTLSCertificates(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.TLSCertFile, certFile)
	_, err = tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err, "generated pair must load")

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	first, err := os.ReadFile(certFile)
	require.NoError(t, err)
	_, _, err = server.EnsureTLSCertificates(cfg)
	require.NoError(t, err)
	second, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, first, second, "existing pair is reused")
}

func TestEnsureTLSCertificates_Errors(t *testing.T) {
	cfg := tlsConfig(t, false)
	_, _, err := server.EnsureTLSCertificates(cfg)
	assert.ErrorContains(t, err, "tls_self_signed")

	cfg = tlsConfig(t, true)
	require.NoError(t, os.WriteFile(cfg.TLSCertFile, []byte("cert"), 0644))
	_, _, err = server.EnsureTLSCertificates(cfg)
	assert.ErrorContains(t, err, "key file does not")
}
