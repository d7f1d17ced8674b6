package ice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maniacs-satm/avs/internal/mux"
)

const (
	// Packets larger than the maximum transmission unit (MTU) of a path are
	// fragmented into smaller packets, or dropped. The MTU should be
	// discovered, but 1500 is typically a safe value.
	sizeMaximumTransmissionUnit = 1500

	// Timeout for querying a STUN server.
	timeoutQueryServer = 5 * time.Second

	// Timeout for reads from a base (i.e. its net.PacketConn).
	timeoutReadFromBase = 5 * time.Second
)

// Base is "the transport address that an ICE agent sends from for a
// particular candidate" [RFC8445 §3]. It is represented here by a UDP
// socket listening on a single local port.
type Base struct {
	net.PacketConn

	address   TransportAddress
	component int

	// STUN response handlers for transactions sent from this base, keyed by
	// transaction ID.
	handlers transactionHandlers

	// Single-fire channel closed once the read loop has died.
	dead chan struct{}

	// Error that caused the read loop to terminate.
	err error
}

type stunHandler func(msg *stunMessage, addr net.Addr, base *Base)

// gatherBases creates one Base per IP address of each non-loopback, up
// network interface (IPv6 addresses only when enableIPv6 is set).
func gatherBases(component int, enableIPv6 bool) ([]*Base, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var bases []*Base
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipnet.IP
			if !enableIPv6 && ip.To4() == nil {
				continue
			}

			base, err := createBase(ip, component)
			if err != nil {
				// Commonly happens for link-local IPv6 addresses that
				// require a zone. Skip and keep gathering.
				log.Debug("Failed to create base for %s: %s", ip, err)
				continue
			}
			bases = append(bases, base)
		}
	}

	if len(bases) == 0 {
		return nil, errNoCandidates
	}
	return bases, nil
}

func createBase(ip net.IP, component int) (*Base, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: 0})
	if err != nil {
		return nil, err
	}

	address := makeTransportAddress(conn.LocalAddr())
	log.Debug("Listening on %s", address)

	return &Base{
		PacketConn: conn,
		address:    address,
		component:  component,
	}, nil
}

// queryStunServer discovers this base's server-reflexive address.
func (base *Base) queryStunServer(ctx context.Context, stunServer string) (TransportAddress, error) {
	stunServerAddr, err := net.ResolveUDPAddr("udp", stunServer)
	if err != nil {
		return TransportAddress{}, err
	}

	req := newStunBindingRequest("")
	log.Debug("Sending to %s: %s", stunServer, req)

	result := make(chan error, 1)
	var mapped TransportAddress
	err = base.sendStun(req, stunServerAddr, func(resp *stunMessage, raddr net.Addr, base *Base) {
		if resp.class == stunSuccessResponse {
			mapped = makeTransportAddress(resp.getMappedAddress())
			result <- nil
		} else {
			result <- fmt.Errorf("STUN server query failed: %s", resp)
		}
	})
	if err != nil {
		return TransportAddress{}, err
	}

	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(timeoutQueryServer):
		err = errors.New("timeout querying STUN server")
	}

	base.handlers.remove(req.transactionID)
	return mapped, err
}

// sendStun sends a STUN message to the given remote address. If a handler is
// supplied, it is invoked with the matching response (by transaction ID).
func (base *Base) sendStun(msg *stunMessage, raddr net.Addr, responseHandler stunHandler) error {
	_, err := base.WriteTo(msg.Bytes(), raddr)
	if err == nil && responseHandler != nil {
		base.handlers.put(msg.transactionID, responseHandler)
	}
	return err
}

// readLoop reads incoming packets from the underlying PacketConn until an
// error occurs. STUN messages are dispatched to defaultHandler (or a
// transaction-specific handler); everything else is forwarded to dataIn, to
// be further demultiplexed (DTLS vs RTP/RTCP) by the coordinator.
func (base *Base) readLoop(defaultHandler stunHandler, dataIn chan<- []byte) {
	if base.dead != nil {
		panic("ice: base read loop already started")
	}
	base.dead = make(chan struct{})
	defer close(base.dead)

	buf := make([]byte, sizeMaximumTransmissionUnit)

	var logOnce sync.Once
	for {
		base.SetReadDeadline(time.Now().Add(timeoutReadFromBase))

		n, raddr, err := base.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Expected for bases that haven't been selected.
				continue
			}
			if opErr, ok := err.(*net.OpError); ok && opErr.Op == "read" {
				log.Debug("Connection closed while reading: %s", base.address)
				break
			}
			log.Warn("Read error on %s: %v", base.address, err)
			base.err = err
			break
		}

		data := make([]byte, n)
		copy(data, buf[0:n])

		if mux.MatchSTUN(data) {
			msg, err := parseStunMessage(data)
			if err != nil {
				log.Warn("Malformed STUN message from %s: %v", raddr, err)
				continue
			}
			if msg != nil {
				handler := base.handlers.get(msg.transactionID, defaultHandler)
				handler(msg, raddr, base)
			}
			continue
		}

		select {
		case dataIn <- data:
		default:
			logOnce.Do(func() {
				log.Warn("Dropping data packet (first byte %#x) because reader cannot keep up", data[0])
			})
		}
	}
}

// transactionHandlers maps a STUN transaction ID to the handler awaiting its
// response.
type transactionHandlers struct {
	sync.Mutex
	m map[string]stunHandler
}

func (t *transactionHandlers) get(transactionID string, def stunHandler) stunHandler {
	t.lockAndInitialize()
	defer t.Unlock()
	if handler, found := t.m[transactionID]; found {
		delete(t.m, transactionID)
		return handler
	}
	return def
}

func (t *transactionHandlers) put(transactionID string, handler stunHandler) {
	t.lockAndInitialize()
	t.m[transactionID] = handler
	t.Unlock()
}

func (t *transactionHandlers) remove(transactionID string) {
	t.lockAndInitialize()
	delete(t.m, transactionID)
	t.Unlock()
}

func (t *transactionHandlers) lockAndInitialize() {
	t.Lock()
	if t.m == nil {
		t.m = make(map[string]stunHandler)
	}
}
