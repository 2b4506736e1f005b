package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// testConn 测试用连接，包装 net.Pipe 的一端
type testConn struct {
	net.Conn
	local, remote types.Rank
}

func (c *testConn) LocalRank() types.Rank  { return c.local }
func (c *testConn) RemoteRank() types.Rank { return c.remote }
func (c *testConn) RemoteAddr() string     { return "pipe" }

// createConnPair 创建一对互连的测试连接
func createConnPair(t *testing.T) (pkgif.Connection, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	conn := &testConn{Conn: a, local: 0, remote: 1}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return conn, b
}

func TestAsyncReadExactBytes(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, peer := createConnPair(t)
	require.NoError(t, d.Register(conn))

	got := make(chan []byte, 1)
	require.NoError(t, d.AsyncRead(conn, 4, func(_ pkgif.Connection, buf []byte, err error) {
		require.NoError(t, err)
		got <- buf
	}))

	go peer.Write([]byte("abcdXYZ"))

	select {
	case buf := <-got:
		assert.Equal(t, []byte("abcd"), buf)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestAsyncReadOrderPreserved(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, peer := createConnPair(t)
	require.NoError(t, d.Register(conn))

	results := make(chan string, 2)
	cb := func(_ pkgif.Connection, buf []byte, err error) {
		require.NoError(t, err)
		results <- string(buf)
	}

	require.NoError(t, d.AsyncRead(conn, 3, cb))
	require.NoError(t, d.AsyncRead(conn, 3, cb))

	go peer.Write([]byte("aaabbb"))

	assert.Equal(t, "aaa", <-results)
	assert.Equal(t, "bbb", <-results)
}

// TestAsyncReadRearmFromCallback 回调里再次 AsyncRead（解复用循环的装载方式）
func TestAsyncReadRearmFromCallback(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, peer := createConnPair(t)
	require.NoError(t, d.Register(conn))

	done := make(chan struct{})
	var count int
	var loop pkgif.AsyncReadCallback
	loop = func(c pkgif.Connection, buf []byte, err error) {
		require.NoError(t, err)
		count++
		if count == 3 {
			close(done)
			return
		}
		require.NoError(t, d.AsyncRead(c, 2, loop))
	}
	require.NoError(t, d.AsyncRead(conn, 2, loop))

	go peer.Write([]byte("x1x2x3"))

	select {
	case <-done:
		assert.Equal(t, 3, count)
	case <-time.After(time.Second):
		t.Fatal("re-armed reads did not complete")
	}
}

func TestAsyncReadConnClosedMidRead(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, peer := createConnPair(t)
	require.NoError(t, d.Register(conn))

	errCh := make(chan error, 1)
	require.NoError(t, d.AsyncRead(conn, 8, func(_ pkgif.Connection, buf []byte, err error) {
		errCh <- err
	}))

	// 写一半就关闭：异常终止，而不是干净的哨兵
	go func() {
		peer.Write([]byte("1234"))
		peer.Close()
	}()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}

	// 连接失效后泵已退出，后续请求报错结束
	errCh2 := make(chan error, 1)
	err := d.AsyncRead(conn, 1, func(_ pkgif.Connection, _ []byte, err error) {
		errCh2 <- err
	})
	if err == nil {
		select {
		case err := <-errCh2:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("leftover request not drained")
		}
	} else {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestRegisterTwice(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, _ := createConnPair(t)
	require.NoError(t, d.Register(conn))
	assert.ErrorIs(t, d.Register(conn), ErrAlreadyRegistered)
}

func TestAsyncReadUnregistered(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, _ := createConnPair(t)
	err := d.AsyncRead(conn, 1, func(pkgif.Connection, []byte, error) {})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDeregisterDrainsPending(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	conn, _ := createConnPair(t)
	require.NoError(t, d.Register(conn))

	errCh := make(chan error, 1)
	require.NoError(t, d.AsyncRead(conn, 4, func(_ pkgif.Connection, _ []byte, err error) {
		errCh <- err
	}))

	d.Deregister(conn)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request not drained on deregister")
	}
}

func TestCloseIdempotent(t *testing.T) {
	d := NewDispatcher()
	conn, _ := createConnPair(t)
	require.NoError(t, d.Register(conn))

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())

	assert.ErrorIs(t, d.Register(conn), ErrClosed)
}
