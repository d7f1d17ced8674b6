package ice

import "errors"

// Typed errors returned by this package.
var (
	errReadTimeout        = errors.New("ice: read timeout")
	errSTUNInvalidMessage = errors.New("ice: STUN message is malformed")
	errNotConfigured      = errors.New("ice: agent not configured")
	errNoCandidates       = errors.New("ice: no local candidates could be gathered")
	errConnectTimeout     = errors.New("ice: failed to establish connection before timeout")
	errChecklistFailed    = errors.New("ice: all candidate pairs failed connectivity checks")
)
