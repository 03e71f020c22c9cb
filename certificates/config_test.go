package certificates_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github/sabouaram/httpengine/certificates"
)

func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "httpengine-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certFile, keyFile
}

func TestTLSConfigLoadsCertificatePair(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)

	cfg := &certificates.Config{
		CertificatePair: []certificates.CertificatePair{{CertFile: certFile, KeyFile: keyFile}},
		MinVersion:      certificates.Version12,
		MaxVersion:      certificates.Version13,
	}

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		t.Fatalf("TLSConfig: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(tlsCfg.Certificates))
	}
	if tlsCfg.MinVersion != uint16(certificates.Version12) {
		t.Fatalf("unexpected min version %x", tlsCfg.MinVersion)
	}
}

func TestValidateRejectsEmptyCertificatePair(t *testing.T) {
	cfg := &certificates.Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty certificate pair list")
	}
}

func TestTLSConfigRejectsMissingFile(t *testing.T) {
	cfg := &certificates.Config{
		CertificatePair: []certificates.CertificatePair{{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}},
	}
	if _, err := cfg.TLSConfig(); err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}
