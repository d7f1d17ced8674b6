package ice

import (
	"fmt"
	"net"
	"time"

	"github.com/pion/turn/v4"
)

// turnAllocateTimeout bounds a single TURN Listen+Allocate attempt, per the
// spec's "TURN allocation timeout is 10 s" / "no operation blocks
// indefinitely" requirements. pion/turn's Client API has no context
// parameter, so the timeout is enforced by closing the underlying socket
// out from under a pending call if it runs long.
const turnAllocateTimeout = 10 * time.Second

// allocateRelayCandidate performs a TURN Allocate against turnServer over a
// fresh UDP socket bound to the same local IP as base (but a distinct port,
// since a TURN allocation needs its own 5-tuple to the relay, per
// [RFC5766 §2]), then wraps the relayed net.PacketConn as a Base so it
// participates in connectivity checks exactly like a host or
// server-reflexive base: the caller adds the returned candidate and runs
// base.readLoop/Agent.loop against relayBase like any other.
//
// A failed attempt is retried once with a fresh socket and TURN client
// before giving up, matching the spec's TURN-rebind recovery rule.
func (a *Agent) allocateRelayCandidate(hostBase *Base, turnServer TURNServerConfig) (Candidate, error) {
	cand, err := a.tryAllocateRelayCandidate(hostBase, turnServer)
	if err != nil {
		log.Warn("TURN allocation failed, rebinding once: %s", err)
		cand, err = a.tryAllocateRelayCandidate(hostBase, turnServer)
	}
	return cand, err
}

func (a *Agent) tryAllocateRelayCandidate(hostBase *Base, turnServer TURNServerConfig) (Candidate, error) {
	localIP := net.ParseIP(hostBase.address.ip)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: localIP, Port: 0})
	if err != nil {
		return Candidate{}, err
	}

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: turnServer.Addr,
		TURNServerAddr: turnServer.Addr,
		Conn:           conn,
		Username:       turnServer.Username,
		Password:       turnServer.Password,
		Software:       "avs",
	})
	if err != nil {
		conn.Close()
		return Candidate{}, err
	}

	if err := runWithTimeout(turnAllocateTimeout, conn, client.Listen); err != nil {
		client.Close()
		conn.Close()
		return Candidate{}, err
	}

	relayConn, err := allocateWithTimeout(turnAllocateTimeout, conn, client)
	if err != nil {
		client.Close()
		conn.Close()
		return Candidate{}, err
	}

	relayAddress := makeTransportAddress(relayConn.LocalAddr())
	relayBase := &Base{
		PacketConn: relayConn,
		address:    relayAddress,
		component:  hostBase.component,
	}

	a.mu.Lock()
	a.bases = append(a.bases, relayBase)
	a.mu.Unlock()
	go a.loop(relayBase)

	return makeRelayedCandidate(a.mid, relayAddress, relayBase, hostBase), nil
}

// runWithTimeout runs fn on its own goroutine and waits up to d for it to
// return, closing conn to unblock fn if the deadline passes first.
func runWithTimeout(d time.Duration, conn net.Conn, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		conn.Close()
		<-done
		return fmt.Errorf("ice: TURN request timed out after %s", d)
	}
}

// allocateWithTimeout is runWithTimeout specialized for client.Allocate,
// which returns a net.PacketConn alongside its error.
func allocateWithTimeout(d time.Duration, conn net.Conn, client *turn.Client) (net.PacketConn, error) {
	type result struct {
		conn net.PacketConn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		relayConn, err := client.Allocate()
		done <- result{relayConn, err}
	}()
	select {
	case r := <-done:
		return r.conn, r.err
	case <-time.After(d):
		conn.Close()
		<-done
		return nil, fmt.Errorf("ice: TURN allocation timed out after %s", d)
	}
}
