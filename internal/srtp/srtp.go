// Package srtp carries encrypted RTP/RTCP traffic over a pair of
// demultiplexed endpoints, keyed from a completed DTLS-SRTP handshake (see
// internal/dtlssrtp). It is a thin, domain-flavored wrapper over
// github.com/pion/srtp/v3: the crypto itself lives there, this package owns
// session lifetime and the read/write shape the coordinator expects.
package srtp

import (
	"net"

	"github.com/pion/srtp/v3"

	"github.com/maniacs-satm/avs/internal/logging"
)

var log = logging.DefaultLogger.WithTag("srtp")

// ReplayWindow configures the replay-protection window size for both SRTP
// and SRTCP. Zero selects the default window of 64 packets.
type ReplayWindow struct {
	SRTP  uint
	SRTCP uint
}

const defaultReplayWindow = 64

// Session wraps the SRTP and SRTCP sub-sessions multiplexed over a single
// media stream's transport.
type Session struct {
	srtp  *srtp.SessionSRTP
	srtcp *srtp.SessionSRTCP
}

// NewSession builds SRTP and SRTCP sessions over rtpConn/rtcpConn (typically
// two internal/mux endpoints demultiplexed from the same ICE-selected
// connection), keyed from keys. Both local and remote sides use the single
// negotiated protection profile; this module always negotiates
// AES-128-CM-HMAC-SHA1-80, matching pion's default and the widest browser
// interop.
func NewSession(rtpConn, rtcpConn net.Conn, keys srtp.SessionKeys, window ReplayWindow) (*Session, error) {
	if window.SRTP == 0 {
		window.SRTP = defaultReplayWindow
	}
	if window.SRTCP == 0 {
		window.SRTCP = defaultReplayWindow
	}

	config := &srtp.Config{
		Profile: srtp.ProtectionProfileAes128CmHmacSha1_80,
		Keys:    keys,
		RemoteOptions: []srtp.Option{
			srtp.SRTPReplayProtection(window.SRTP),
			srtp.SRTCPReplayProtection(window.SRTCP),
		},
	}

	srtpSession, err := srtp.NewSessionSRTP(rtpConn, config)
	if err != nil {
		return nil, err
	}
	srtcpSession, err := srtp.NewSessionSRTCP(rtcpConn, config)
	if err != nil {
		srtpSession.Close()
		return nil, err
	}

	return &Session{srtp: srtpSession, srtcp: srtcpSession}, nil
}

// OpenWriteStream returns the single write stream used to send RTP packets
// for every SSRC on this session.
func (s *Session) OpenWriteStream() (*srtp.WriteStreamSRTP, error) {
	return s.srtp.OpenWriteStream()
}

// OpenReadStream returns the read stream for a specific remote SSRC,
// creating it on first use.
func (s *Session) OpenReadStream(ssrc uint32) (*srtp.ReadStreamSRTP, error) {
	return s.srtp.OpenReadStream(ssrc)
}

// OpenWriteStreamRTCP returns the write stream used to send RTCP packets.
func (s *Session) OpenWriteStreamRTCP() (*srtp.WriteStreamSRTCP, error) {
	return s.srtcp.OpenWriteStream()
}

// OpenReadStreamRTCP returns the RTCP read stream for a remote SSRC.
func (s *Session) OpenReadStreamRTCP(ssrc uint32) (*srtp.ReadStreamSRTCP, error) {
	return s.srtcp.OpenReadStream(ssrc)
}

// AcceptStream blocks until the remote side opens a new RTP SSRC and
// returns a stream for it, for a side that does not know the remote SSRC in
// advance. Nothing in this module calls it.
func (s *Session) AcceptStream() (*srtp.ReadStreamSRTP, uint32, error) {
	return s.srtp.AcceptStream()
}

// Close tears down both sub-sessions.
func (s *Session) Close() error {
	var firstErr error
	if err := s.srtp.Close(); err != nil {
		firstErr = err
	}
	if err := s.srtcp.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		log.Warn("Error closing SRTP session: %s", firstErr)
	}
	return firstErr
}
