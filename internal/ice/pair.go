package ice

import (
	"fmt"
)

// CandidatePairState is the lifecycle state of a CandidatePair during
// connectivity checks. See [RFC8445 §6.1.2.6].
type CandidatePairState int

const (
	Frozen CandidatePairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s CandidatePairState) String() string {
	switch s {
	case Frozen:
		return "frozen"
	case Waiting:
		return "waiting"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CandidatePair is a local/remote candidate pair under consideration for
// data exchange. See [RFC8445 §6.1.2].
type CandidatePair struct {
	id         string
	local      Candidate
	remote     Candidate
	foundation string
	component  int

	state     CandidatePairState
	nominated bool

	// retries counts the connectivity checks sent for this pair so the
	// checklist can stop retransmitting and mark it Failed.
	retries int
}

func newCandidatePair(seq int, local, remote Candidate) *CandidatePair {
	if local.component != remote.component {
		panic(fmt.Sprintf("candidates in pair have different components: %d != %d", local.component, remote.component))
	}
	return &CandidatePair{
		id:         fmt.Sprintf("pair#%d", seq),
		local:      local,
		remote:     remote,
		foundation: local.foundation + "/" + remote.foundation,
		component:  local.component,
	}
}

func (p *CandidatePair) String() string {
	nom := ""
	if p.nominated {
		nom = " nominated"
	}
	return fmt.Sprintf("%s: %s -> %s [%s%s]", p.id, p.local.address, p.remote.address, p.state, nom)
}

// Priority computes the pair priority per [RFC8445 §6.1.2.3]. G is the
// controlling agent's candidate priority and D is the controlled agent's.
func (p *CandidatePair) Priority(role Role) uint64 {
	var g, d uint64
	if role == Controlling {
		g, d = uint64(p.local.priority), uint64(p.remote.priority)
	} else {
		g, d = uint64(p.remote.priority), uint64(p.local.priority)
	}
	var b uint64
	if g > d {
		b = 1
	}
	return minU64(g, d)<<32 + maxU64(g, d)<<1 + b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
