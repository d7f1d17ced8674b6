// Package sdpneg implements SDP offer/answer negotiation: generating and
// parsing session descriptions, tracking negotiation state, and resolving
// the codec/crypto/SSRC parameters the rest of the session needs.
package sdpneg

import (
	"github.com/maniacs-satm/avs/internal/logging"
)

var log = logging.DefaultLogger.WithTag("sdpneg")

// State is the negotiation phase a Negotiator is in. See [RFC3264] for the
// offer/answer model this tracks.
type State int

const (
	Init State = iota
	LocalOffer
	RemoteOffer
	RemoteAnswer
	LocalAnswer
	Complete
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case LocalOffer:
		return "local-offer"
	case RemoteOffer:
		return "remote-offer"
	case RemoteAnswer:
		return "remote-answer"
	case LocalAnswer:
		return "local-answer"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// transition validates and applies one step of the state machine:
//
//	INIT -> LOCAL_OFFER -> REMOTE_ANSWER -> COMPLETE
//	INIT -> REMOTE_OFFER -> LOCAL_ANSWER -> COMPLETE
//
// reset() returns to INIT from any state.
func (s State) transition(event string) (State, error) {
	switch {
	case event == "reset":
		return Init, nil

	case event == "generate_offer" && s == Init:
		return LocalOffer, nil

	case event == "handle_offer" && s == Init:
		return RemoteOffer, nil

	case event == "generate_answer" && s == RemoteOffer:
		return LocalAnswer, nil

	case event == "handle_answer" && s == LocalOffer:
		return RemoteAnswer, nil

	case event == "complete" && (s == RemoteAnswer || s == LocalAnswer):
		return Complete, nil
	}
	return s, errInvalidTransition
}
