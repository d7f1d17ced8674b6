package ice

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/randutil"
)

// Agent implements RFC8445 connectivity establishment for a single
// component of a single data stream (mid). It gathers local candidates,
// exchanges them with the remote agent (the trickle ICE pattern), runs
// connectivity checks over every viable pair, and surfaces a single
// net.Conn once a pair has been nominated and validated.
type Agent struct {
	mid    string
	cfg    Config
	role   Role

	localUfrag, localPassword   string
	remoteUfrag, remotePassword string

	mu               sync.Mutex
	localCandidates  []Candidate
	remoteCandidates []Candidate

	checklist *Checklist
	bases     []*Base

	dataConn  *ChannelConn
	ready     chan *ChannelConn
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAgent creates an Agent for the given media description identifier
// (SDP "mid"). The agent does not start gathering until Configure and
// EstablishConnection are called.
func NewAgent(ctx context.Context, mid string, cfg Config) *Agent {
	ctx, cancel := context.WithCancel(ctx)
	tieBreaker := randutil.NewMathRandomGenerator().Uint64()
	return &Agent{
		mid:    mid,
		cfg:    cfg,
		role:   cfg.Role,
		ready:  make(chan *ChannelConn, 1),
		ctx:    ctx,
		cancel: cancel,
		checklist: &Checklist{
			role:            cfg.Role,
			maxCheckRetries: cfg.maxCheckRetries(),
			tieBreaker:      tieBreaker,
		},
	}
}

// Configure sets the local/remote ICE credentials negotiated via SDP.
func (a *Agent) Configure(localUfrag, localPassword, remoteUfrag, remotePassword string) {
	a.localUfrag, a.localPassword = localUfrag, localPassword
	a.remoteUfrag, a.remotePassword = remoteUfrag, remotePassword

	a.checklist.localUfrag, a.checklist.localPassword = localUfrag, localPassword
	a.checklist.remoteUfrag, a.checklist.remotePassword = remoteUfrag, remotePassword
}

// Role reports the agent's current ICE role.
func (a *Agent) Role() Role { return a.role }

// EstablishConnection gathers local candidates (trickling them to lcand),
// starts connectivity checks, and blocks until a pair is selected, the
// agent's context is cancelled, or a fixed 30-second timeout elapses.
func (a *Agent) EstablishConnection(lcand chan<- Candidate) (net.Conn, error) {
	if a.localUfrag == "" {
		return nil, errNotConfigured
	}

	const component = 1
	bases, err := gatherBases(component, a.cfg.EnableIPv6)
	if err != nil {
		return nil, err
	}
	a.bases = bases

	go func() {
		if err := a.gatherLocalCandidates(bases, lcand); err != nil {
			log.Warn("Candidate gathering failed: %v", err)
		}
	}()

	for _, base := range bases {
		go a.loop(base)
	}

	select {
	case conn := <-a.ready:
		return conn, nil
	case <-a.ctx.Done():
		return nil, a.ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, errConnectTimeout
	}
}

// AddRemoteCandidate parses and stores a remote candidate received via SDP
// or trickle, pairing it against every known local candidate. An empty desc
// signals end-of-candidates and is a no-op.
func (a *Agent) AddRemoteCandidate(desc string) error {
	if desc == "" {
		return nil
	}

	c := Candidate{mid: a.mid}
	if err := parseCandidateSDP(desc, &c); err != nil {
		return err
	}

	a.mu.Lock()
	a.remoteCandidates = append(a.remoteCandidates, c)
	locals := append([]Candidate(nil), a.localCandidates...)
	a.mu.Unlock()

	a.checklist.addCandidatePairs(locals, []Candidate{c})
	return nil
}

func (a *Agent) addLocalCandidate(c Candidate) {
	a.mu.Lock()
	a.localCandidates = append(a.localCandidates, c)
	remotes := append([]Candidate(nil), a.remoteCandidates...)
	a.mu.Unlock()

	a.checklist.addCandidatePairs([]Candidate{c}, remotes)
}

// gatherLocalCandidates gathers host, server-reflexive, and (if configured)
// relayed candidates for each base, delivering each to lcand as soon as it
// is known.
func (a *Agent) gatherLocalCandidates(bases []*Base, lcand chan<- Candidate) error {
	var wg sync.WaitGroup
	wg.Add(len(bases))
	for _, base := range bases {
		go func(base *Base) {
			defer wg.Done()
			log.Debug("Gathering local candidates for base %s", base.address)

			hc := makeHostCandidate(a.mid, base)
			a.addLocalCandidate(hc)
			lcand <- hc

			if a.role == Lite || base.address.protocol != UDP || base.address.linkLocal {
				return
			}

			for _, stunServer := range a.cfg.STUNServers {
				mapped, err := base.queryStunServer(a.ctx, stunServer)
				if err != nil {
					log.Debug("STUN query to %s failed for base %s: %s", stunServer, base.address, err)
					continue
				}
				if mapped == base.address {
					continue
				}
				c := makeServerReflexiveCandidate(a.mid, mapped, base, stunServer)
				a.addLocalCandidate(c)
				lcand <- c
			}

			for _, turnServer := range a.cfg.TURNServers {
				c, err := a.allocateRelayCandidate(base, turnServer)
				if err != nil {
					log.Debug("TURN allocation on %s via %s failed: %s", base.address, turnServer.Addr, err)
					continue
				}
				a.addLocalCandidate(c)
				lcand <- c
			}
		}(base)
	}
	wg.Wait()
	close(lcand)
	return nil
}

// loop runs the per-base event loop: demultiplexing incoming STUN traffic,
// driving the periodic/triggered check scheduler, and sending keepalives on
// the selected pair.
func (a *Agent) loop(base *Base) {
	dataIn := make(chan []byte, 64)
	go base.readLoop(a.handleStun, dataIn)

	checkTicker := time.NewTicker(50 * time.Millisecond)
	defer checkTicker.Stop()

	keepaliveTicker := time.NewTicker(30 * time.Second)
	defer keepaliveTicker.Stop()

	stateCh := make(chan checklistState, 1)
	lid := a.checklist.addListener(stateCh)
	defer a.checklist.removeListener(lid)

	for {
		select {
		case <-a.ctx.Done():
			return

		case state := <-stateCh:
			switch state {
			case checklistCompleted:
				a.readyOnce.Do(func() {
					checkTicker.Stop()
					p := a.checklist.selected
					log.Debug("Selected candidate pair: %s", p)
					a.dataConn = newChannelConn(p, dataIn)
					a.ready <- a.dataConn
				})
			case checklistFailed:
				log.Warn("All candidate pairs failed for mid=%s", a.mid)
			}

		case <-checkTicker.C:
			if p := a.checklist.nextPair(); p != nil {
				if err := a.checklist.sendCheck(p); err != nil {
					log.Warn("Failed to send connectivity check: %s", err)
				}
			}

		case <-keepaliveTicker.C:
			if p := a.checklist.selected; p != nil {
				p.local.base.sendStun(newStunBindingIndication(), p.remote.address.netAddr(), nil)
			}
		}
	}
}

func (a *Agent) handleStun(msg *stunMessage, raddr net.Addr, base *Base) {
	switch msg.class {
	case stunRequest:
		a.handleStunRequest(msg, raddr, base)
	case stunIndication:
		// Keepalive; no response required.
	case stunSuccessResponse, stunErrorResponse:
		log.Debug("Received unmatched STUN response from %s: %s", raddr, msg)
	}
}

// handleStunRequest answers a connectivity check from the peer. See
// [RFC8445 §7.3].
func (a *Agent) handleStunRequest(req *stunMessage, raddr net.Addr, base *Base) {
	p := a.checklist.findPair(base, raddr)
	if p == nil {
		p = a.adoptPeerReflexiveCandidate(raddr, base, req.getPriority())
	}

	if req.hasUseCandidate() && a.role != Controlling && !p.nominated {
		log.Debug("Nominating %s via peer USE-CANDIDATE", p.id)
		a.checklist.nominate(p)
	}

	resp := newStunBindingResponse(req.transactionID, raddr, a.localPassword)
	if err := base.sendStun(resp, raddr, nil); err != nil {
		log.Warn("Failed to send STUN response: %s", err)
		return
	}

	a.checklist.triggerCheck(p)
}

// adoptPeerReflexiveCandidate handles the case where the peer's check
// arrives from an address we haven't paired yet. See [RFC8445 §7.3.1.3-4].
func (a *Agent) adoptPeerReflexiveCandidate(raddr net.Addr, base *Base, priority uint32) *CandidatePair {
	c := makePeerReflexiveCandidate(a.mid, raddr, base, priority)

	a.mu.Lock()
	a.remoteCandidates = append(a.remoteCandidates, c)
	a.mu.Unlock()

	hc := makeHostCandidate(a.mid, base)
	a.checklist.addCandidatePairs([]Candidate{hc}, []Candidate{c})

	p := a.checklist.findPair(base, raddr)
	if p == nil {
		// Should be unreachable: we just added the pair above.
		panic("ice: candidate pair missing after peer-reflexive adoption")
	}
	return p
}

// Nominate marks the given pair for use. Only valid for a controlling
// agent; it arranges for the next check against p to carry USE-CANDIDATE.
func (a *Agent) Nominate(p *CandidatePair) {
	if a.role != Controlling {
		return
	}
	a.checklist.nominate(p)
	a.checklist.triggerCheck(p)
}

// Close tears down the agent's bases and cancels its context.
func (a *Agent) Close() error {
	a.cancel()
	var firstErr error
	for _, base := range a.bases {
		if err := base.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newChannelConn(p *CandidatePair, dataIn <-chan []byte) *ChannelConn {
	return NewChannelConn(p.local.base, dataIn, p.remote.address.netAddr())
}
