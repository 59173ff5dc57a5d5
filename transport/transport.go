/*
Package transport provides the datagram endpoints the protocol runs
over. Everything above it speaks net.PacketConn, so UDP, the
in-process loopback network and the WebSocket adapter are
interchangeable.
*/
package transport

import (
	"errors"
	"fmt"
	"net"
)

// ListenUDP opens a UDP endpoint on port. Port 0 picks a free port.
func ListenUDP(port int) (net.PacketConn, error) {
	pc, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("can't bind port %d: %w", port, err)
	}

	return pc, nil
}

// DialUDP opens an unconnected UDP endpoint and resolves the server
// address to send to.
func DialUDP(host string, port int) (net.PacketConn, net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, nil, fmt.Errorf("can't resolve %s:%d: %w", host, port, err)
	}

	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, nil, fmt.Errorf("can't open socket: %w", err)
	}

	return pc, addr, nil
}

// MaxDatagramSize bounds a single read. Packet bodies are fragmented
// well below this.
const MaxDatagramSize = 65536

// ReadLoop reads datagrams from pc and forwards them until pc is
// closed. Read errors other than closure are forwarded to errs.
func ReadLoop(pc net.PacketConn, pkts chan<- Datagram, errs chan<- error) {
	for {
		buf := make([]byte, MaxDatagramSize)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if isClosed(err) {
				break
			}

			select {
			case errs <- err:
			default:
			}
			continue
		}

		pkts <- Datagram{Data: buf[:n], Addr: addr}
	}

	close(pkts)
}

// A Datagram is one raw packet with its source address.
type Datagram struct {
	Data []byte
	Addr net.Addr
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
