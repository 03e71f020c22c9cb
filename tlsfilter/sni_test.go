package tlsfilter_test

import (
	"crypto/tls"
	"net"
	"testing"

	"github/sabouaram/httpengine/tlsfilter"
)

// captureClientHello performs a real (doomed-to-fail) TLS handshake
// attempt over a net.Pipe and returns the raw bytes the client wrote,
// which is exactly one TLS record carrying a ClientHello.
func captureClientHello(t *testing.T, serverName string) []byte {
	t.Helper()

	serverSide, clientSide := net.Pipe()

	go func() {
		client := tls.Client(clientSide, &tls.Config{ServerName: serverName, InsecureSkipVerify: true})
		_ = client.Handshake() // never completes; nothing reads the server side
	}()

	buf := make([]byte, 4096)
	n, err := serverSide.Read(buf)
	_ = serverSide.Close()
	_ = clientSide.Close()
	if err != nil {
		t.Fatalf("read client hello: %v", err)
	}
	return buf[:n]
}

func TestHelloSnifferExtractsSNI(t *testing.T) {
	raw := captureClientHello(t, "example.test")

	s := tlsfilter.NewHelloSniffer()
	hello, ok, err := s.Feed(raw)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete ClientHello in one record")
	}
	if hello.ServerName != "example.test" {
		t.Fatalf("expected server name %q, got %q", "example.test", hello.ServerName)
	}
}

func TestHelloSnifferIncompleteReturnsNotOK(t *testing.T) {
	raw := captureClientHello(t, "example.test")

	s := tlsfilter.NewHelloSniffer()
	_, ok, err := s.Feed(raw[:len(raw)-10])
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if ok {
		t.Fatal("expected incomplete ClientHello to report ok=false")
	}
}

func TestHelloSnifferRejectsNonTLS(t *testing.T) {
	s := tlsfilter.NewHelloSniffer()
	_, _, err := s.Feed([]byte("GET / HTTP/1.1\r\n"))
	if err != tlsfilter.ErrNotClientHello {
		t.Fatalf("expected ErrNotClientHello, got %v", err)
	}
}
