package beacon

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

const readPoll = 500 * time.Millisecond

// UDPTransport broadcasts beacons to an IPv4 multicast group.
type UDPTransport struct {
	conn   *net.UDPConn
	group  *net.UDPAddr
	self   *net.UDPAddr
	closed atomic.Bool
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport joins group ("239.255.42.99:5007") on the named
// interface, or on the system default when ifaceName is empty.
func NewUDPTransport(group, ifaceName string) (*UDPTransport, error) {
	var iface *net.Interface
	if ifaceName != "" {
		var err error
		if iface, err = net.InterfaceByName(ifaceName); err != nil {
			return nil, err
		}
	}
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, gaddr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(1 << 18)

	// The socket is bound to the wildcard address; peers see the unicast
	// address of the sending interface and the group port.
	self := &net.UDPAddr{IP: sourceIP(iface, gaddr), Port: gaddr.Port}
	return &UDPTransport{conn: conn, group: gaddr, self: self}, nil
}

// LocalAddr returns the address beacons are sent from. IP is nil when no
// IPv4 address could be found for the interface.
func (u *UDPTransport) LocalAddr() *net.UDPAddr {
	return u.self
}

// sourceIP picks the IPv4 address beacons leave from: the first one of
// iface, or the one the kernel routes group traffic through.
func sourceIP(iface *net.Interface, group *net.UDPAddr) net.IP {
	if iface != nil {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil
		}
		return firstIPv4(addrs)
	}
	// Connecting a UDP socket sends nothing; it only resolves the route.
	c, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		return nil
	}
	defer c.Close()
	if addr, ok := c.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsUnspecified() {
		return addr.IP
	}
	return nil
}

func firstIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsUnspecified() && !ip4.IsLinkLocalUnicast() {
			return ip4
		}
	}
	return nil
}

func (u *UDPTransport) Broadcast(ctx context.Context, payload []byte) error {
	if u.closed.Load() {
		return core.ErrTransportClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = u.conn.SetWriteDeadline(deadline)
	}
	_, err := u.conn.WriteToUDP(payload, u.group)
	return err
}

func (u *UDPTransport) Receive(ctx context.Context, fn func(payload []byte)) error {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if u.closed.Load() {
			return core.ErrTransportClosed
		}

		// Short deadlines let the loop notice cancellation.
		_ = u.conn.SetReadDeadline(time.Now().Add(readPoll))
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if u.closed.Load() || errors.Is(err, net.ErrClosed) {
				return core.ErrTransportClosed
			}
			return err
		}
		fn(buf[:n])
	}
}

func (u *UDPTransport) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	return u.conn.Close()
}
