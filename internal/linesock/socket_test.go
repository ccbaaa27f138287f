package linesock

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rotmast/internal/watch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loopback returns a connected Reader and the server side of the connection.
func loopback(t *testing.T) (*Reader, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	r, err := Dial(context.Background(), ln.Addr().String(), "")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	srv, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return r, srv
}

func TestReader_LoopbackReadyAndRead(t *testing.T) {
	r, srv := loopback(t)

	ready, err := r.Ready(0)
	require.NoError(t, err)
	require.False(t, ready, "nothing sent yet")

	_, err = srv.Write([]byte("$HCHDM,271.0,M\r\n$IIMTA,19.0,C\r\n"))
	require.NoError(t, err)

	ready, err = r.Ready(time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	line, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "$HCHDM,271.0,M\r\n", line)

	// The second sentence is buffered; Ready must not need the socket.
	ready, err = r.Ready(0)
	require.NoError(t, err)
	require.True(t, ready)

	line, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "$IIMTA,19.0,C\r\n", line)
	require.Equal(t, line, r.Last())
}

func TestReader_LoopbackStreamRequest(t *testing.T) {
	r, srv := loopback(t)

	require.NoError(t, r.Stream(watch.Enable|watch.NMEA, ""))

	_ = srv.SetReadDeadline(time.Now().Add(time.Second))
	got, err := bufio.NewReader(srv).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "?WATCH={\"enable\":true,\"nmea\":true}\n", got)
}

func TestReader_LoopbackPeerClose(t *testing.T) {
	r, srv := loopback(t)

	_, err := srv.Write([]byte("tail-without-newline"))
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	n, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = r.ReadLine()
	require.True(t, errors.Is(err, ErrStreamClosed), "err=%v", err)
	require.Equal(t, 0, n)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, "", WithDialTimeout(500*time.Millisecond))
	require.ErrorIs(t, err, ErrConnection)
}

func TestReader_InterruptUnblocksNext(t *testing.T) {
	r, _ := loopback(t)

	done := make(chan error, 1)
	go func() {
		_, err := r.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Interrupt())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Interrupt")
	}
}
