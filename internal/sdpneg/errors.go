package sdpneg

import "errors"

var (
	errInvalidTransition  = errors.New("sdpneg: invalid negotiation state transition")
	errMissingFingerprint = errors.New("sdpneg: DTLS-SRTP required but remote SDP carries no fingerprint")
	errUnsupportedCrypto  = errors.New("sdpneg: no supported crypto in common with remote offer")
	errNoSuchMedia        = errors.New("sdpneg: no media section of the requested type")
	errEndOfCandidates    = errors.New("sdpneg: candidate received after end-of-candidates")
)
