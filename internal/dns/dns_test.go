package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupReturnsIPLiteral(t *testing.T) {
	ip, err := NewResolver().Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestLookupLocalhost(t *testing.T) {
	ip, err := NewResolver().Lookup(context.Background(), "localhost")
	require.NoError(t, err)
	assert.NotNil(t, net.ParseIP(ip))
}

func TestDialContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := NewResolver().DialContext(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()
}

func TestDialContextRejectsBadAddress(t *testing.T) {
	_, err := NewResolver().DialContext(context.Background(), "tcp", "no-port")
	assert.Error(t, err)
}
