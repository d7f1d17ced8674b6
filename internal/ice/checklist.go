package ice

import (
	"net"
	"sort"
	"sync"
	"time"
)

// checklistState is the overall state of a Checklist. See [RFC8445 §6.1.2.1].
type checklistState int

const (
	checklistRunning checklistState = iota
	checklistCompleted
	checklistFailed
)

// initialRTO is the first retransmission timeout for a connectivity check,
// per [RFC8445 §14.3]. It doubles on each retry, up to Config.MaxCheckRetries
// attempts, after which the pair is marked Failed.
const initialRTO = 500 * time.Millisecond

// Checklist tracks candidate pairs for a single component and drives
// connectivity checks against them per [RFC8445 §6.1].
type Checklist struct {
	role            Role
	maxCheckRetries int

	// ICE credentials, used to build and verify STUN messages.
	localUfrag, localPassword   string
	remoteUfrag, remotePassword string
	tieBreaker                  uint64

	mu sync.Mutex

	state          checklistState
	nextPairID     int
	pairs          []*CandidatePair
	triggeredQueue []*CandidatePair
	valid          []*CandidatePair
	selected       *CandidatePair
	nextToCheck    int

	listeners      map[int]chan checklistState
	nextListenerID int
}

// addCandidatePairs pairs up locals with remotes, adds the result to the
// checklist, then re-sorts, re-prunes, and unfreezes newly eligible pairs.
func (cl *Checklist) addCandidatePairs(locals, remotes []Candidate) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, local := range locals {
		for _, remote := range remotes {
			if !canBePaired(local, remote) {
				continue
			}
			p := newCandidatePair(cl.nextPairID, local, remote)
			cl.nextPairID++
			log.Debug("Adding candidate pair %s", p)
			cl.pairs = append(cl.pairs, p)
		}
	}

	cl.pairs = cl.sortAndPrune(cl.pairs)

	for _, p := range cl.pairs {
		if p.state == Frozen {
			p.state = Waiting
		}
	}
}

// canBePaired returns true if local and remote have compatible transports
// for the same ICE component.
func canBePaired(local, remote Candidate) bool {
	return local.component == remote.component &&
		local.address.protocol == remote.address.protocol &&
		local.address.family == remote.address.family &&
		local.address.linkLocal == remote.address.linkLocal
}

// sortAndPrune orders pairs from highest to lowest priority and removes
// redundant ones. See [RFC8445 §6.1.2.3-4].
func (cl *Checklist) sortAndPrune(pairs []*CandidatePair) []*CandidatePair {
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Priority(cl.role) > pairs[j].Priority(cl.role)
	})

	pruned := pairs[:0]
	for i, p := range pairs {
		if p.state == InProgress || p.state == Succeeded || p.state == Failed {
			// [draft-ietf-ice-trickle-21 §10] Preserve pairs with checks in flight.
			pruned = append(pruned, p)
			continue
		}
		redundant := false
		for j := 0; j < i; j++ {
			if isRedundant(p, pairs[j]) {
				log.Debug("Pruning %s in favor of %s", p.id, pairs[j].id)
				redundant = true
				break
			}
		}
		if !redundant {
			pruned = append(pruned, p)
		}
	}
	return pruned
}

// isRedundant reports whether p1 and p2 share a remote candidate and local
// base. See [RFC8445 §6.1.2.4].
func isRedundant(p1, p2 *CandidatePair) bool {
	return p1.remote.address == p2.remote.address && p1.local.base.address == p2.local.base.address
}

// nextPair returns the next candidate pair to check: a triggered check takes
// priority, then the next pair in the Waiting state, round-robin.
func (cl *Checklist) nextPair() *CandidatePair {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		return p
	}

	n := len(cl.pairs)
	for i := 0; i < n; i++ {
		k := (cl.nextToCheck + i) % n
		if cl.pairs[k].state == Waiting {
			cl.nextToCheck = (k + 1) % n
			return cl.pairs[k]
		}
	}
	return nil
}

// sendCheck sends a connectivity check for p and schedules a retry per the
// exponential-backoff RTO. After maxCheckRetries attempts without a
// response, the pair is marked Failed.
func (cl *Checklist) sendCheck(p *CandidatePair) error {
	return cl.sendCheckAttempt(p, initialRTO)
}

func (cl *Checklist) sendCheckAttempt(p *CandidatePair, rto time.Duration) error {
	username := cl.remoteUfrag + ":" + cl.localUfrag
	useCandidate := cl.role == Controlling && p.nominated
	req := newConnectivityCheck(username, p.local.peerPriority(), cl.role, cl.tieBreaker, useCandidate)
	req.addMessageIntegrity(cl.remotePassword)
	req.addFingerprint()

	p.state = InProgress
	p.retries++

	retransmit := time.AfterFunc(rto, func() {
		cl.mu.Lock()
		stillInProgress := p.state == InProgress
		cl.mu.Unlock()
		if !stillInProgress {
			return
		}
		if p.retries >= cl.maxCheckRetries {
			cl.mu.Lock()
			p.state = Failed
			cl.mu.Unlock()
			log.Debug("%s: giving up after %d checks", p.id, p.retries)
			cl.updateState()
			return
		}
		p.state = Waiting
		cl.sendCheckAttempt(p, rto*2)
	})

	log.Debug("%s: sending check to %s from %s (attempt %d)", p.id, p.remote.address, p.local.address, p.retries)
	return p.local.base.sendStun(req, p.remote.address.netAddr(), func(resp *stunMessage, raddr net.Addr, base *Base) {
		retransmit.Stop()
		cl.processResponse(p, resp)
	})
}

func (cl *Checklist) processResponse(p *CandidatePair, resp *stunMessage) {
	cl.mu.Lock()
	if p.state != InProgress {
		cl.mu.Unlock()
		log.Debug("Received unexpected STUN response for %s", p)
		return
	}

	switch resp.class {
	case stunSuccessResponse:
		p.state = Succeeded
		cl.valid = append(cl.valid, p)
		log.Debug("%s: connectivity check succeeded", p.id)
	case stunErrorResponse:
		p.state = Failed
	}
	cl.mu.Unlock()

	cl.updateState()
}

// nominate marks p as the pair to use for data. Only meaningful for the
// controlling agent; on the controlled agent, nomination instead happens
// when the peer's check carries USE-CANDIDATE (see handleStunRequest).
func (cl *Checklist) nominate(p *CandidatePair) {
	cl.mu.Lock()
	if p.state == Frozen {
		p.state = Waiting
	}
	p.nominated = true
	cl.mu.Unlock()
	cl.updateState()
}

// updateState promotes the checklist to Completed once a nominated pair has
// succeeded, and notifies listeners of any state change. Exactly one pair
// per component is selected, per [RFC8445 §8.1.1].
func (cl *Checklist) updateState() {
	cl.mu.Lock()
	if cl.state != checklistRunning {
		cl.mu.Unlock()
		return
	}

	for _, p := range cl.valid {
		if p.nominated {
			log.Debug("Selected %s", p)
			cl.selected = p
			cl.state = checklistCompleted
			break
		}
	}

	if cl.state == checklistRunning && cl.allPairsFailed() {
		cl.state = checklistFailed
	}

	state := cl.state
	listeners := make([]chan checklistState, 0, len(cl.listeners))
	for _, ch := range cl.listeners {
		listeners = append(listeners, ch)
	}
	cl.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- state:
		default:
		}
	}
}

func (cl *Checklist) allPairsFailed() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if p.state != Failed {
			return false
		}
	}
	return true
}

func (cl *Checklist) addListener(ch chan checklistState) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	id := cl.nextListenerID
	cl.nextListenerID++
	if cl.listeners == nil {
		cl.listeners = make(map[int]chan checklistState)
	}
	cl.listeners[id] = ch
	return id
}

func (cl *Checklist) removeListener(id int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.listeners, id)
}

// findPair returns the pair matching the given base and remote address, if
// any.
func (cl *Checklist) findPair(base *Base, raddr net.Addr) *CandidatePair {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	remoteAddress := makeTransportAddress(raddr)
	for _, p := range cl.pairs {
		if p.local.base == base && p.remote.address == remoteAddress {
			return p
		}
	}
	return nil
}

// triggerCheck enqueues an immediate check for p, per [RFC8445 §7.3.1.4].
func (cl *Checklist) triggerCheck(p *CandidatePair) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if p.state == Frozen || p.state == Waiting || p.state == Failed {
		p.state = Waiting
		cl.triggeredQueue = append(cl.triggeredQueue, p)
	}
}
