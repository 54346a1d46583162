package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/config"
)

var logger *zap.Logger

func init() {
	logger = zap.L().With(zap.String("package", "server"))
}

// EnsureTLSCertificates returns the console's TLS certificate and key files.
// Both are empty when TLS is not configured. With tls_self_signed set, a
// missing pair is generated in place.
func EnsureTLSCertificates(cfg *config.Config) (certFile string, keyFile string, err error) {
	if cfg.TLSCertFile == "" && cfg.TLSKeyFile == "" {
		return "", "", nil
	}

	certExists, err := fileExists(cfg.TLSCertFile)
	if err != nil {
		return "", "", err
	}
	keyExists, err := fileExists(cfg.TLSKeyFile)
	if err != nil {
		return "", "", err
	}

	switch {
	case certExists && keyExists:
		logger.Info("found existing TLS certificate and key", zap.String("cert_file", cfg.TLSCertFile), zap.String("key_file", cfg.TLSKeyFile))
	case certExists:
		return "", "", errors.New("server: cert file exists but key file does not")
	case keyExists:
		return "", "", errors.New("server: key file exists but cert file does not")
	case !cfg.TLSSelfSigned:
		return "", "", fmt.Errorf("server: TLS files %s and %s not found and tls_self_signed is off", cfg.TLSCertFile, cfg.TLSKeyFile)
	default:
		if err := generateSelfSignedCert(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.ProductName); err != nil {
			return "", "", err
		}
		logger.Info("generated self-signed TLS certificate", zap.String("cert_file", cfg.TLSCertFile), zap.String("key_file", cfg.TLSKeyFile))
	}

	return cfg.TLSCertFile, cfg.TLSKeyFile, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("server: failed to stat %s: %w", path, err)
}

func generateSelfSignedCert(certFile string, keyFile string, commonName string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("server: failed to generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return fmt.Errorf("server: failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("server: failed to create self-signed certificate: %w", err)
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("server: failed to marshal private key: %w", err)
	}

	if err := writePEM(certFile, 0644, "CERTIFICATE", derBytes); err != nil {
		return err
	}
	return writePEM(keyFile, 0600, "PRIVATE KEY", keyBytes)
}

func writePEM(path string, perm os.FileMode, blockType string, der []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("server: failed to create %s: %w", path, err)
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		out.Close()
		return fmt.Errorf("server: failed to write %s: %w", path, err)
	}
	return out.Close()
}
