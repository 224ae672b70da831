package mailcheck

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingServer accepts LOGIN and then never answers another command.
type stallingServer struct {
	ln    net.Listener
	roots *x509.CertPool

	mu   sync.Mutex
	seen []string
}

func newStallingServer(t *testing.T) *stallingServer {
	t.Helper()
	// borrow httptest's self-signed localhost certificate
	hts := httptest.NewUnstartedServer(http.NotFoundHandler())
	hts.StartTLS()
	certs := hts.TLS.Certificates
	roots := x509.NewCertPool()
	roots.AddCert(hts.Certificate())
	hts.Close()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: certs})
	require.NoError(t, err)
	s := &stallingServer{ln: ln, roots: roots}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return s
}

func (s *stallingServer) serve(conn net.Conn) {
	defer conn.Close()
	fmt.Fprint(conn, "* OK [CAPABILITY IMAP4rev1] ready\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		s.mu.Lock()
		s.seen = append(s.seen, strings.ToUpper(f[1]))
		s.mu.Unlock()
		if strings.EqualFold(f[1], "LOGIN") {
			fmt.Fprintf(conn, "%s OK LOGIN completed\r\n", f[0])
		}
	}
}

func (s *stallingServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func (s *stallingServer) checker(timeout time.Duration) *Checker {
	return New(Config{
		Host:     s.ln.Addr().String(),
		Username: "inbox@example.com",
		Password: "app-password",
		Subjects: []string{"New Job Alert"},
		Timeout:  timeout,
		TLS:      &tls.Config{RootCAs: s.roots, ServerName: "127.0.0.1"},
	})
}

func TestPollTimeoutBoundsStalledSession(t *testing.T) {
	srv := newStallingServer(t)

	start := time.Now()
	msgs, err := srv.checker(300 * time.Millisecond).Poll(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, msgs)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Contains(t, srv.commands(), "SELECT")
}

func TestPollStopsOnCancel(t *testing.T) {
	srv := newStallingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := srv.checker(time.Minute).Poll(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		for _, c := range srv.commands() {
			if c == "SELECT" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Poll still blocked after cancel")
	}
}
