package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("transport: closed")

// Inbound is one bundle delivered by Receive: its payload and the source
// endpoint, to the extent the convergence layer can identify one.
type Inbound struct {
	Payload []byte
	From    Endpoint
}

// Adapter sends and receives opaque payload bundles addressed to ipn
// endpoints. Concurrent Send from one goroutine and Receive from another
// is a property every implementation must provide itself, not something
// the engine arranges.
type Adapter interface {
	// Send transmits payload to dst with the given bundle TTL. There is
	// no separate send timeout; ttl bounds how long the bundle sits in
	// the underlying queue.
	Send(ctx context.Context, dst Endpoint, payload []byte, ttl time.Duration) error
	// Receive blocks until a bundle arrives or the adapter is closed. It
	// must be interruptible so the supervisor can unblock it on shutdown.
	Receive(ctx context.Context) (Inbound, error)
	Close() error
}

// AddressBook maps a node id to the network address dtnex should send its
// convergence-layer datagrams to. In a real ION-DTN deployment the router
// itself resolves ipn endpoints to a CLA address; the reference UDP
// transport needs this supplied directly since it has no router to ask.
type AddressBook interface {
	Resolve(node uint64) (*net.UDPAddr, error)
}

// StaticAddressBook is the simplest AddressBook: a fixed map.
type StaticAddressBook map[uint64]*net.UDPAddr

func (b StaticAddressBook) Resolve(node uint64) (*net.UDPAddr, error) {
	addr, ok := b[node]
	if !ok {
		return nil, fmt.Errorf("transport: no address known for node %d", node)
	}
	return addr, nil
}

// udpConn is the subset of *net.UDPConn the transport needs, mirroring
// p2p/discover/udp.go's conn interface so a test can substitute a fake.
type udpConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// UDPTransport is a reference convergence-layer binding: one UDP socket,
// NAT-mapped if a NAT gateway is reachable, read by a background loop and
// written to directly by Send. Bundles are capped at
// wireproto.MaxEnvelopeSize-scale payloads, well under any realistic MTU,
// so no fragmentation handling is implemented.
type UDPTransport struct {
	conn  udpConn
	local Endpoint
	book  AddressBook
	nat   NAT

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	inbound chan Inbound
	log     logrus.FieldLogger
}

// ListenUDP opens a UDP socket on laddr and returns a transport that
// identifies the local node and service as local. If nat is non-nil, an
// external port mapping is attempted (best-effort; failure is logged, not
// fatal, since the NAT layer is pure convenience here, not a requirement).
func ListenUDP(laddr string, local Endpoint, book AddressBook, nat NAT, log logrus.FieldLogger) (*UDPTransport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	t := &UDPTransport{
		conn:    conn,
		local:   local,
		book:    book,
		nat:     nat,
		closing: make(chan struct{}),
		inbound: make(chan Inbound, 64),
		log:     log,
	}

	if nat != nil {
		realaddr := conn.LocalAddr().(*net.UDPAddr)
		go t.mapNAT(realaddr.Port)
	}

	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) mapNAT(port int) {
	if err := t.nat.AddMapping("udp", port, port, "dtnex", 0); err != nil {
		t.log.WithError(err).Debug("nat mapping failed, continuing without it")
	}
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closing:
				return
			default:
			}
			t.log.WithError(err).Debug("udp read error")
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		in := Inbound{Payload: payload, From: Endpoint{Node: 0, Service: t.local.Service}}
		_ = addr // the convergence layer's source address does not map to a node id on its own; origin comes from the envelope, authenticated by the MAC.
		select {
		case t.inbound <- in:
		case <-t.closing:
			return
		}
	}
}

func (t *UDPTransport) Send(ctx context.Context, dst Endpoint, payload []byte, ttl time.Duration) error {
	addr, err := t.book.Resolve(dst.Node)
	if err != nil {
		return err
	}
	_ = ttl // the reference UDP binding has no queue to bound; a real BPv7 CLA would pass ttl to its bundle's lifetime field.
	_, err = t.conn.WriteToUDP(payload, addr)
	return err
}

func (t *UDPTransport) Receive(ctx context.Context) (Inbound, error) {
	select {
	case in, ok := <-t.inbound:
		if !ok {
			return Inbound{}, ErrClosed
		}
		return in, nil
	case <-t.closing:
		return Inbound{}, ErrClosed
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	}
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closing)
	return t.conn.Close()
}
