package session

import (
	"net"
	"testing"
	"time"

	"github.com/AmbrSb/LServer/internal/lscontext"
	"github.com/AmbrSb/LServer/internal/vbuf"
)

// testContext returns a live, held Context plus a cleanup func that
// unholds and stops its owning pool.
func testContext(t *testing.T) (*lscontext.Context, func()) {
	t.Helper()
	cp := lscontext.NewContextPool(1, 1, 1, 1)
	ctx := cp.Next()
	if ctx == nil {
		t.Fatal("expected an active context")
	}
	return ctx, func() {
		ctx.Unhold()
		cp.Stop()
	}
}

type echoProtocol struct {
	started chan struct{}
	closed  chan struct{}
	sess    *Session
}

func (p *echoProtocol) OnStart() Feedback {
	close(p.started)
	return Continue
}

func (p *echoProtocol) OnData(data []byte) Feedback {
	p.sess.Send(data)
	return Continue
}

func (p *echoProtocol) OnSent(int) Feedback { return Continue }
func (p *echoProtocol) OnError(error)       {}
func (p *echoProtocol) OnClosed()           { close(p.closed) }

func TestSessionEchoesDataAndClosesOnEOF(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	bufPool := vbuf.NewBufferPool(64)
	pool, err := NewPool(0, false, bufPool)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cleanup := testContext(t)
	defer cleanup()

	proto := &echoProtocol{started: make(chan struct{}), closed: make(chan struct{})}
	s, ok := pool.Borrow(0, serverConn, proto, ctx)
	if !ok {
		t.Fatal("expected to borrow a session")
	}
	proto.sess = s
	s.Start()

	<-proto.started

	if _, err := clientConn.Write([]byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	got := make([]byte, 5)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(clientConn, got); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	clientConn.Close()
	select {
	case <-proto.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session never closed after peer hung up")
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestCloseIsIdempotent(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	bufPool := vbuf.NewBufferPool(64)
	pool, _ := NewPool(0, false, bufPool)

	ctx, cleanup := testContext(t)
	defer cleanup()

	proto := &echoProtocol{started: make(chan struct{}), closed: make(chan struct{})}
	s, _ := pool.Borrow(0, serverConn, proto, ctx)
	proto.sess = s
	s.Start()
	<-proto.started

	s.Close()
	s.Close()

	select {
	case <-proto.closed:
	case <-time.After(time.Second):
		t.Fatal("OnClosed never called")
	}
}
