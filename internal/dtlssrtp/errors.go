package dtlssrtp

import "errors"

var (
	errShortKeyingMaterial = errors.New("dtlssrtp: exported keying material shorter than required")
	errNoRemoteCertificate = errors.New("dtlssrtp: peer did not present a certificate")
	errFingerprintMismatch = errors.New("dtlssrtp: remote certificate fingerprint does not match SDP")
)
