package avs

// LocalCandidateHandler is invoked on the network/coordination thread each
// time a new local ICE candidate is gathered, or with an empty desc once
// gathering completes (end-of-candidates).
type LocalCandidateHandler func(desc string)

// EstablishedHandler is invoked once ICE has nominated a pair, the DTLS
// handshake has completed, and SRTP keys are installed.
type EstablishedHandler func()

// AudioHandler receives decoded PCM samples for a remote audio stream.
type AudioHandler func(pcm []int16)

// CloseHandler is invoked exactly once when a session terminates, carrying
// the reason.
type CloseHandler func(code CloseCode, err error)
