package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointString(t *testing.T) {
	e := Endpoint{Node: 268484800, Service: 12160}
	assert.Equal(t, "ipn:268484800.12160", e.String())
}

func TestStaticAddressBookResolve(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}
	book := StaticAddressBook{1: addr}
	got, err := book.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = book.Resolve(2)
	assert.Error(t, err)
}

// fakeConn is a minimal in-memory udpConn for driving UDPTransport without
// a real socket, mirroring the fake conn style p2p/discover/udp.go's own
// tests use against its conn interface.
type fakeConn struct {
	reads  chan []byte
	writes chan []byte
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 8),
		writes: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	select {
	case data := <-f.reads:
		n := copy(b, data)
		return n, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	cp := append([]byte(nil), b...)
	select {
	case f.writes <- cp:
	default:
	}
	return len(b), nil
}

func (f *fakeConn) Close() error {
	close(f.closed)
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12160}
}

func TestUDPTransportSendAndReceive(t *testing.T) {
	fc := newFakeConn()
	tr := &UDPTransport{
		conn:    fc,
		local:   Endpoint{Node: 1, Service: 12160},
		book:    StaticAddressBook{2: {IP: net.ParseIP("127.0.0.1"), Port: 9000}},
		closing: make(chan struct{}),
		inbound: make(chan Inbound, 8),
	}
	go tr.readLoop()

	err := tr.Send(context.Background(), Endpoint{Node: 2, Service: 12160}, []byte("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), <-fc.writes)

	fc.reads <- []byte("world")
	in, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), in.Payload)

	require.NoError(t, tr.Close())
	_, err = tr.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPTransportSendUnknownDestination(t *testing.T) {
	fc := newFakeConn()
	tr := &UDPTransport{
		conn:    fc,
		local:   Endpoint{Node: 1, Service: 12160},
		book:    StaticAddressBook{},
		closing: make(chan struct{}),
		inbound: make(chan Inbound, 1),
	}
	err := tr.Send(context.Background(), Endpoint{Node: 99, Service: 12160}, []byte("x"), time.Second)
	assert.Error(t, err)
}
