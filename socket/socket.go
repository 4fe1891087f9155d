/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package socket binds and multiplexes the UDP multicast groups OTP uses
(§4.I, §6). Transform PDUs are sent/received on a per-System group;
Advertisement PDUs (Module/Name/System) share one fixed group. Both
IPv4 and IPv6 variants exist; producers and consumers pick whichever
the local network supports.
*/
package socket

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/esta-otp/otp/protocol"
	"golang.org/x/sys/unix"
)

// Port is the UDP port OTP uses for every multicast group.
const Port = 5568

// TransformGroupIPv4 returns the IPv4 multicast group for Transform PDUs
// belonging to system: 239.159.1.S.
func TransformGroupIPv4(system protocol.System) net.IP {
	return net.IPv4(239, 159, 1, byte(system))
}

// TransformGroupIPv6 returns the IPv6 multicast group for Transform PDUs
// belonging to system: ff18::9f:0:1:S.
func TransformGroupIPv6(system protocol.System) net.IP {
	return net.ParseIP(fmt.Sprintf("ff18::9f:0:1:%x", byte(system)))
}

// AdvertisementGroupIPv4 is the fixed IPv4 multicast group for all
// Advertisement PDUs: 239.159.2.1.
var AdvertisementGroupIPv4 = net.IPv4(239, 159, 2, 1)

// AdvertisementGroupIPv6 is the fixed IPv6 multicast group for all
// Advertisement PDUs: ff18::9f:0:2:1.
var AdvertisementGroupIPv6 = net.ParseIP("ff18::9f:0:2:1")

// Packet is a datagram received from a joined group, tagged with the
// sender's address.
type Packet struct {
	Data []byte
	Src  net.IP
}

// Socket is the collaborator contract §4.I requires of producer and
// consumer: join/leave a multicast group, send a datagram to a group,
// and receive whatever arrives on any joined group.
type Socket interface {
	Join(group net.IP) error
	Leave(group net.IP) error
	SendTo(group net.IP, payload []byte) error
	Recv() (Packet, error)
	Close() error
}

// UDPSocket is a Socket backed by one net.ListenMulticastUDP listener
// per joined group (the standard net-package idiom for multicast
// receive, generalized to IPv4 and IPv6 alike) fanned into a single
// receive channel, plus one unicast-bound connection used for sends.
// Grounded on the per-port listener goroutines in ptp4u's
// server.go (startEventListener/startGeneralListener).
type UDPSocket struct {
	iface *net.Interface

	mu        sync.Mutex
	listeners map[string]*net.UDPConn
	closed    bool

	sendConn *net.UDPConn
	packets  chan Packet
	errs     chan error
}

// ErrClosed is returned by Recv once the socket has been closed.
var ErrClosed = errors.New("socket: closed")

// Bind opens a UDPSocket on iface (nil means the system default
// multicast-capable interface).
func Bind(iface *net.Interface) (*UDPSocket, error) {
	sendConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("binding send socket: %w", err)
	}
	return &UDPSocket{
		iface:     iface,
		listeners: make(map[string]*net.UDPConn),
		sendConn:  sendConn,
		packets:   make(chan Packet, 256),
		errs:      make(chan error, 1),
	}, nil
}

// Join subscribes the socket to group's multicast traffic on Port.
func (s *UDPSocket) Join(group net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	key := group.String()
	if _, ok := s.listeners[key]; ok {
		return nil
	}
	conn, err := net.ListenMulticastUDP("udp", s.iface, &net.UDPAddr{IP: group, Port: Port})
	if err != nil {
		return fmt.Errorf("joining multicast group %v: %w", group, err)
	}
	s.listeners[key] = conn
	go s.readLoop(conn)
	return nil
}

// Leave unsubscribes the socket from group's multicast traffic.
func (s *UDPSocket) Leave(group net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := group.String()
	conn, ok := s.listeners[key]
	if !ok {
		return nil
	}
	delete(s.listeners, key)
	return conn.Close()
}

func (s *UDPSocket) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 65536)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.packets <- Packet{Data: data, Src: src.IP}:
		default:
			// receiver too slow; drop rather than block every joined group's reader.
		}
	}
}

// SendTo writes payload to group on Port.
func (s *UDPSocket) SendTo(group net.IP, payload []byte) error {
	_, err := s.sendConn.WriteToUDP(payload, &net.UDPAddr{IP: group, Port: Port})
	if err != nil {
		return fmt.Errorf("sending to %v: %w", group, err)
	}
	return nil
}

// SetDSCP marks every datagram this socket sends with dscp (0..63) in the
// IPv4 TOS / IPv6 traffic-class field, so real-time Transform traffic can
// ride a priority queue ahead of best-effort traffic on a congested link.
func (s *UDPSocket) SetDSCP(dscp int) error {
	fd, err := connFd(s.sendConn)
	if err != nil {
		return fmt.Errorf("getting send socket fd: %w", err)
	}
	errIP := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, dscp<<2)
	errIPv6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscp<<2)
	if errIP != nil && errIPv6 != nil {
		return fmt.Errorf("setting DSCP on send socket: %w / %w", errIP, errIPv6)
	}
	return nil
}

// connFd returns the raw file descriptor backing conn.
func connFd(conn *net.UDPConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = sc.Control(func(f uintptr) {
		fd = int(f)
	})
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// Recv blocks for the next datagram received on any joined group.
func (s *UDPSocket) Recv() (Packet, error) {
	p, ok := <-s.packets
	if !ok {
		return Packet{}, ErrClosed
	}
	return p, nil
}

// Close closes every joined listener and the send connection.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, conn := range s.listeners {
		conn.Close()
	}
	s.sendConn.Close()
	close(s.packets)
	return nil
}
