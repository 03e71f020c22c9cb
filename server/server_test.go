package server_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/server"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartAcceptsAndCollectReportsConnection(t *testing.T) {
	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: time.Second, IOTimeout: 2 * time.Second}
	s := server.New(2, limits, nil, nil, nil)

	if err := s.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if s.State() != server.Running {
		t.Fatalf("expected Running, got %v", s.State())
	}

	addrs := s.Addrs()
	if len(addrs) != 1 {
		t.Fatalf("expected one bound address, got %v", addrs)
	}

	conn, err := net.Dial("tcp", addrs[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, time.Second, func() bool {
		return s.Collect().TotalConns == 1
	})
}

func selfSignedServerConfig(t *testing.T) *tls.Config {
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
		DNSNames:     []string{"example.test"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair: %v", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

func TestListenTLSAcceptsHandshake(t *testing.T) {
	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: time.Second, IOTimeout: 2 * time.Second}
	s := server.New(1, limits, nil, nil, nil)

	if err := s.ListenTLS("tcp", "127.0.0.1:0", selfSignedServerConfig(t)); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	conn, err := net.Dial("tcp", s.Addrs()[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	clientTLS := tls.Client(conn, &tls.Config{ServerName: "example.test", InsecureSkipVerify: true})
	if err := clientTLS.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return s.Collect().TotalConns == 1
	})
}

func TestShutdownTransitionsToDown(t *testing.T) {
	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: time.Second, IOTimeout: time.Second}
	s := server.New(1, limits, nil, nil, nil)
	if err := s.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if s.State() != server.Down {
		t.Fatalf("expected Down, got %v", s.State())
	}
}

func TestSuspendRejectsNewConnections(t *testing.T) {
	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: time.Second, IOTimeout: time.Second}
	s := server.New(1, limits, nil, nil, nil)
	if err := s.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Suspend()

	if s.State() != server.Suspended {
		t.Fatalf("expected Suspended, got %v", s.State())
	}

	conn, err := net.Dial("tcp", s.Addrs()[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, time.Second, func() bool {
		return s.Collect().TotalConns == 0
	})
}
