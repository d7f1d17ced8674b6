// Package rtpsession drives the bundled RTP/RTCP transport for a media
// session: one SRTP-protected stream per SSRC (audio, video, and the
// RFC4588 retransmission SSRC for video), sender/receiver report exchange,
// and routing of inbound packets to the SSRC that owns them. It packetizes
// and depacketizes with github.com/pion/rtp and github.com/pion/rtcp;
// encryption is handled underneath by internal/srtp.
package rtpsession

import (
	"context"
	"sync"

	pionsrtp "github.com/pion/srtp/v3"

	"github.com/maniacs-satm/avs/internal/logging"
	"github.com/maniacs-satm/avs/internal/srtp"
)

var log = logging.DefaultLogger.WithTag("rtpsession")

// MediaType distinguishes the SSRCs a Session carries, matching the
// coordinator's per-media-type SSRC bookkeeping.
type MediaType int

const (
	Audio MediaType = iota
	Video
	VideoRTX
)

func (m MediaType) String() string {
	switch m {
	case Audio:
		return "audio"
	case Video:
		return "video"
	case VideoRTX:
		return "video-rtx"
	default:
		return "unknown"
	}
}

// StreamConfig describes one local/remote SSRC pair to bind into the
// session, as negotiated via SDP.
type StreamConfig struct {
	Type        MediaType
	LocalSSRC   uint32
	RemoteSSRC  uint32
	PayloadType uint8
	ClockRate   uint32
	CNAME       string
}

// Session multiplexes every negotiated media stream over one SRTP/SRTCP
// transport.
type Session struct {
	srtp *srtp.Session

	writeStream     *pionsrtp.WriteStreamSRTP
	writeStreamRTCP *pionsrtp.WriteStreamSRTCP

	mu      sync.RWMutex
	streams map[uint32]*Stream // keyed by local SSRC
	remotes map[uint32]*Stream // keyed by remote SSRC

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession wraps an established SRTP/SRTCP transport. Call AddStream once
// per negotiated media line.
func NewSession(ctx context.Context, s *srtp.Session) (*Session, error) {
	writeStream, err := s.OpenWriteStream()
	if err != nil {
		return nil, err
	}
	writeStreamRTCP, err := s.OpenWriteStreamRTCP()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		srtp:            s,
		writeStream:     writeStream,
		writeStreamRTCP: writeStreamRTCP,
		streams:         make(map[uint32]*Stream),
		remotes:         make(map[uint32]*Stream),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// AddStream registers a media stream and opens its SRTP/SRTCP sub-streams.
func (s *Session) AddStream(cfg StreamConfig) (*Stream, error) {
	stream, err := newStream(s, cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.streams[cfg.LocalSSRC] = stream
	s.remotes[cfg.RemoteSSRC] = stream
	s.mu.Unlock()

	go stream.readRTPLoop()
	go stream.readRTCPLoop()
	return stream, nil
}

// StreamByRemoteSSRC looks up the stream that should handle a packet
// arriving for the given remote SSRC.
func (s *Session) StreamByRemoteSSRC(ssrc uint32) (*Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.remotes[ssrc]
	return stream, ok
}

// Close tears down every stream and the underlying SRTP transport.
func (s *Session) Close() error {
	s.cancel()
	return s.srtp.Close()
}
