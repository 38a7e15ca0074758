package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPListenAndDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &TCP{ListenAddr: addr}
	streams := make(chan Stream, 1)
	listener, err := srv.Listen(func(s Stream) { streams <- s })
	require.NoError(t, err)
	defer listener.Stop()

	cli := &TCP{}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := cli.Dial(ctx, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	select {
	case s := <-streams:
		buf := make([]byte, 4)
		_, err := io.ReadFull(s, buf)
		require.NoError(t, err)
		require.Equal(t, "ping", string(buf))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted stream")
	}
}

func TestTCPClientOnlyDisablesListen(t *testing.T) {
	tr := &TCP{}
	l, err := tr.Listen(func(Stream) {})
	require.NoError(t, err)
	require.Nil(t, l)
}
