package tlsfilter_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github/sabouaram/httpengine/stream"
	"github/sabouaram/httpengine/tlsfilter"
)

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

// ownerLoop emulates the single goroutine every Filter's schedule
// callback must funnel onto (worker.Worker.Run, in production): every
// access to the filter's nodes below happens as a job submitted here,
// never directly from another goroutine.
type ownerLoop struct {
	jobs chan func()
}

func newOwnerLoop() *ownerLoop {
	o := &ownerLoop{jobs: make(chan func(), 64)}
	go func() {
		for j := range o.jobs {
			j()
		}
	}()
	return o
}

func (o *ownerLoop) schedule(j func()) { o.jobs <- j }

func (o *ownerLoop) run(fn func()) {
	done := make(chan struct{})
	o.jobs <- func() { fn(); close(done) }
	<-done
}

func TestFilterRoundTripsApplicationData(t *testing.T) {
	serverSocket, clientSocket := net.Pipe()
	defer clientSocket.Close()

	cfg := selfSignedServerConfig(t)
	loop := newOwnerLoop()

	var handshakeComplete atomic.Bool
	io := stream.New(serverSocket, nil)
	f := tlsfilter.New(cfg, io.StreamIn, io.StreamOut, loop.schedule, nil, func(tls.ConnectionState) {
		handshakeComplete.Store(true)
	})
	defer f.Close()

	go func() {
		for {
			io.Readable()
			loop.run(f.OnCryptReadable)
		}
	}()

	clientDone := make(chan error, 1)
	var clientTLS *tls.Conn
	go func() {
		clientTLS = tls.Client(clientSocket, &tls.Config{ServerName: "example.test", InsecureSkipVerify: true})
		clientDone <- clientTLS.Handshake()
	}()

	if err := <-clientDone; err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	waitFor(t, time.Second, func() bool { return handshakeComplete.Load() })

	if _, err := clientTLS.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	var got []byte
	waitFor(t, time.Second, func() bool {
		var length int64
		loop.run(func() { length = f.PlainIn.Out.Length() })
		return length > 0
	})
	loop.run(func() {
		if !f.PlainIn.Out.ExtractTo(f.PlainIn.Out.Length(), &got) {
			t.Fatal("extract plaintext")
		}
	})
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	loop.run(func() {
		f.PlainOut.Out.AppendBytes([]byte("world"))
		f.PlainOut.Notify()
	})

	buf := make([]byte, 16)
	n, err := clientTLS.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("expected %q, got %q", "world", buf[:n])
	}
}
