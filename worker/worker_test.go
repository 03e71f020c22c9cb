package worker_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github/sabouaram/httpengine/connection"
	"github/sabouaram/httpengine/vr"
	"github/sabouaram/httpengine/worker"
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

func TestAcceptDrivesDirectHandlerToCompletion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := worker.New(0, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	limits := connection.Limits{MaxKeepAliveRequests: 1, MaxKeepAliveIdle: time.Second, IOTimeout: 5 * time.Second}
	c := w.Accept(server, limits)
	c.VR.SetActionRoot(&vr.SettingAction{Apply: func(v *vr.VR) { v.HandleDirect() }})

	go client.Write([]byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n"))
	go io.Copy(io.Discard, client) // net.Pipe writes block until the peer reads

	waitFor(t, 2*time.Second, func() bool {
		return w.Snapshot().RequestsServed == 1
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

func TestAcceptTLSDrivesDirectHandlerToCompletion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := worker.New(0, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	limits := connection.Limits{MaxKeepAliveRequests: 1, MaxKeepAliveIdle: time.Second, IOTimeout: 5 * time.Second}
	c := w.AcceptTLS(server, selfSignedServerConfig(t), limits)
	c.VR.SetActionRoot(&vr.SettingAction{Apply: func(v *vr.VR) { v.HandleDirect() }})

	clientTLS := tls.Client(client, &tls.Config{ServerName: "example.test", InsecureSkipVerify: true})
	if err := clientTLS.Handshake(); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	go clientTLS.Write([]byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n"))

	waitFor(t, 2*time.Second, func() bool {
		return w.Snapshot().RequestsServed == 1
	})
}

func TestSnapshotReflectsConnectionCount(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := worker.New(2, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	limits := connection.Limits{MaxKeepAliveRequests: 100, MaxKeepAliveIdle: time.Second, IOTimeout: time.Second}
	w.Accept(server, limits)

	waitFor(t, time.Second, func() bool {
		return w.Snapshot().Connections == 1
	})
}
