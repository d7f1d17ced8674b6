// Copyright (c) 2019 Lanikai Labs. All rights reserved.

package avs

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pionrtp "github.com/pion/rtp"

	"github.com/maniacs-satm/avs/internal/dtlssrtp"
	"github.com/maniacs-satm/avs/internal/ice"
	"github.com/maniacs-satm/avs/internal/logging"
	"github.com/maniacs-satm/avs/internal/media"
	"github.com/maniacs-satm/avs/internal/mux"
	"github.com/maniacs-satm/avs/internal/rtpsession"
	"github.com/maniacs-satm/avs/internal/sdpneg"
	"github.com/maniacs-satm/avs/internal/srtp"
)

var log = logging.DefaultLogger.WithTag("avs")

// Session is the Media Session Coordinator: it holds references to the
// ICE, DTLS-SRTP, and SDP engines for a single two-party media flow, and
// owns the RTP/RTCP transport once they are established. All mutation
// happens on the goroutine that calls its methods; callers are expected to
// serialize their own calls, matching the network/coordination thread
// model described for this session type.
type Session struct {
	id uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	cfg Config

	cert        tls.Certificate
	negotiator  *sdpneg.Negotiator
	iceAgent    *ice.Agent
	mux         *mux.Mux
	dtlsSession *dtlssrtp.Session
	srtpSession *srtp.Session
	rtp         *rtpsession.Session

	audioStream *rtpsession.Stream
	videoStream *rtpsession.Stream

	stats *statsTracker

	mu          sync.Mutex
	established bool
	started     bool
	held        bool
	closed      bool

	onLocalCandidate LocalCandidateHandler
	onEstablished    EstablishedHandler
	onClose          CloseHandler
}

const bundleMid = "bundle"

// Allocate constructs a Session: generates (or reuses) the local DTLS
// identity, builds the ICE agent and SDP negotiator, and registers the
// caller's handlers. It does not start ICE; call StartICE for that.
// This corresponds to the public allocate() contract.
func Allocate(ctx context.Context, cfg Config, dtlsCert *tls.Certificate, onLocalCandidate LocalCandidateHandler, onEstablished EstablishedHandler, onClose CloseHandler) (*Session, error) {
	cert, err := resolveCertificate(dtlsCert)
	if err != nil {
		return nil, newError(ResourceExhausted, "generating DTLS certificate", err)
	}

	localFp, err := dtlssrtp.LocalFingerprint(cert)
	if err != nil {
		return nil, newError(Internal, "computing local fingerprint", err)
	}

	ufrag, err := randomToken(4)
	if err != nil {
		return nil, newError(ResourceExhausted, "generating ICE ufrag", err)
	}
	password, err := randomToken(22)
	if err != nil {
		return nil, newError(ResourceExhausted, "generating ICE password", err)
	}

	ssrcs, err := randomSSRCSet(cfg)
	if err != nil {
		return nil, newError(ResourceExhausted, "generating SSRCs", err)
	}

	negotiator := sdpneg.New(sdpneg.Config{
		Ufrag:         ufrag,
		Password:      password,
		Fingerprint:   sdpneg.Fingerprint{Algorithm: localFp.Algorithm, Value: localFp.Value},
		AudioCodecs:   cfg.AudioCodecs,
		VideoCodecs:   cfg.VideoCodecs,
		LocalSSRCs:    ssrcs,
		PrivacyMode:   cfg.PrivacyMode,
		OriginAddress: cfg.LocalAddress,
	})

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:               uuid.New(),
		ctx:              ctx,
		cancel:           cancel,
		cfg:              cfg,
		cert:             cert,
		negotiator:       negotiator,
		iceAgent:         ice.NewAgent(ctx, bundleMid, cfg.iceConfig()),
		stats:            newStatsTracker(),
		onLocalCandidate: onLocalCandidate,
		onEstablished:    onEstablished,
		onClose:          onClose,
	}
	return s, nil
}

func resolveCertificate(provided *tls.Certificate) (tls.Certificate, error) {
	if provided != nil {
		return *provided, nil
	}
	return dtlssrtp.GenerateSelfSigned()
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomSSRC() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func randomSSRCSet(cfg Config) (sdpneg.SSRCSet, error) {
	audio, err := randomSSRC()
	if err != nil {
		return sdpneg.SSRCSet{}, err
	}
	set := sdpneg.SSRCSet{Audio: audio}
	if len(cfg.VideoCodecs) > 0 {
		video, err := randomSSRC()
		if err != nil {
			return sdpneg.SSRCSet{}, err
		}
		set.Video = video
		set.HasVideo = true
		if cfg.EnableVideoRTX {
			rtx, err := randomSSRC()
			if err != nil {
				return sdpneg.SSRCSet{}, err
			}
			set.VideoRTX = rtx
			set.HasVideoRTX = true
		}
	}
	return set, nil
}

// --- SDP I/O -----------------------------------------------------------

// GenerateOffer produces a local SDP offer.
func (s *Session) GenerateOffer() (string, error) {
	offer, err := s.negotiator.GenerateOffer()
	if err != nil {
		return "", newError(InvalidArgument, "generating offer", err)
	}
	return offer, nil
}

// GenerateAnswer produces a local SDP answer in response to a previously
// handled remote offer.
func (s *Session) GenerateAnswer() (string, error) {
	answer, err := s.negotiator.GenerateAnswer()
	if err != nil {
		return "", newError(InvalidArgument, "generating answer", err)
	}
	return answer, nil
}

// HandleOffer parses a remote offer.
func (s *Session) HandleOffer(sdp string) error {
	if err := s.negotiator.HandleOffer(sdp); err != nil {
		return newError(InvalidArgument, "handling offer", err)
	}
	return nil
}

// HandleAnswer parses a remote answer and marks negotiation complete. The
// ICE agent receives the negotiated credentials later, in StartICE.
func (s *Session) HandleAnswer(sdp string) error {
	if err := s.negotiator.HandleAnswer(sdp); err != nil {
		return newError(InvalidArgument, "handling answer", err)
	}
	return nil
}

// OfferAnswer handles a remote offer and returns the local answer in one
// call.
func (s *Session) OfferAnswer(offer string) (string, error) {
	answer, err := s.negotiator.OfferAnswer(offer)
	if err != nil {
		return "", newError(InvalidArgument, "offer/answer", err)
	}
	return answer, nil
}

// AddRemoteCandidate adds a trickled remote ICE candidate. An empty desc
// signals end-of-candidates.
func (s *Session) AddRemoteCandidate(desc string) error {
	if err := s.negotiator.AddRemoteCandidate(desc); err != nil {
		return newError(InvalidArgument, "adding remote candidate", err)
	}
	if err := s.iceAgent.AddRemoteCandidate(desc); err != nil {
		return newError(ProtocolError, "adding remote candidate to ICE agent", err)
	}
	return nil
}

// SDPComplete reports whether both offer and answer have been processed.
func (s *Session) SDPComplete() bool { return s.negotiator.IsComplete() }

// --- ICE / DTLS / SRTP establishment ------------------------------------

// StartICE configures the ICE agent from negotiated credentials and begins
// gathering and connectivity checks. Local candidates are reported via the
// session's LocalCandidateHandler as they are discovered; once a pair is
// nominated, the DTLS handshake runs automatically and, on success, the
// EstablishedHandler fires.
func (s *Session) StartICE() error {
	if !s.negotiator.IsComplete() {
		return newError(NotReady, "StartICE called before SDP negotiation completed", nil)
	}

	if _, ok := s.negotiator.Resolved(sdpneg.Audio); !ok {
		if _, ok := s.negotiator.Resolved(sdpneg.Video); !ok {
			return newError(NotReady, "StartICE called with no resolved media", nil)
		}
	}

	localUfrag, localPassword := s.negotiator.LocalICECredentials()
	remoteUfrag, remotePassword := s.negotiator.RemoteICECredentials()
	s.iceAgent.Configure(localUfrag, localPassword, remoteUfrag, remotePassword)

	for _, desc := range s.negotiator.RemoteCandidates() {
		if err := s.iceAgent.AddRemoteCandidate(desc); err != nil {
			log.Warn("session %s: failed to seed ICE agent with remote candidate: %s", s.id, err)
		}
	}

	go s.runICEAndEstablish()
	return nil
}

func (s *Session) runICEAndEstablish() {
	start := time.Now()
	lcand := make(chan ice.Candidate, 16)
	var turnAllocSeen bool
	go func() {
		for c := range lcand {
			desc := c.String()
			if !turnAllocSeen && strings.Contains(desc, " typ relay") {
				turnAllocSeen = true
				s.stats.setTurnAlloc(time.Since(start).Milliseconds())
			}
			s.negotiator.AddLocalCandidate(desc)
			if s.onLocalCandidate != nil {
				s.onLocalCandidate(desc)
			}
		}
		if s.onLocalCandidate != nil {
			s.onLocalCandidate("")
		}
	}()

	conn, err := s.iceAgent.EstablishConnection(lcand)
	if err != nil {
		s.stats.setNatEstab(StatError)
		s.fail(CloseTimeout, newError(Timeout, "ICE connectivity establishment failed", err))
		return
	}
	s.stats.setNatEstab(time.Since(start).Milliseconds())

	s.mux = mux.NewMux(conn, 8192)
	dtlsEndpoint := s.mux.NewEndpoint(mux.MatchDTLS)
	rtpEndpoint := s.mux.NewEndpoint(mux.MatchRTP)
	rtcpEndpoint := s.mux.NewEndpoint(mux.MatchRTCP)

	isClient := s.iceAgent.Role() == ice.Controlling

	var remoteFp dtlssrtp.Fingerprint
	if fp := s.negotiator.RemoteFingerprint(); fp.Value != "" {
		remoteFp = dtlssrtp.Fingerprint{Algorithm: fp.Algorithm, Value: fp.Value}
	}

	dtlsStart := time.Now()
	dtlsSession, err := dtlssrtp.Handshake(dtlsEndpoint, s.cert, remoteFp, isClient)
	if err != nil {
		s.stats.setDtlsEstab(StatError)
		s.fail(CloseAuthenticationFailed, newError(AuthenticationFailed, "DTLS handshake failed", err))
		return
	}
	s.stats.setDtlsEstab(time.Since(dtlsStart).Milliseconds())
	s.stats.addDtlsSent(dtlsSession.PacketsSent())
	s.stats.addDtlsReceived(dtlsSession.PacketsReceived())
	s.dtlsSession = dtlsSession

	srtpSession, err := srtp.NewSession(rtpEndpoint, rtcpEndpoint, dtlsSession.Keys, srtp.ReplayWindow{})
	if err != nil {
		s.fail(CloseProtocolError, newError(ProtocolError, "establishing SRTP session", err))
		return
	}
	s.srtpSession = srtpSession

	rtpSession, err := rtpsession.NewSession(s.ctx, srtpSession)
	if err != nil {
		s.fail(CloseProtocolError, newError(ProtocolError, "establishing RTP session", err))
		return
	}
	s.rtp = rtpSession

	if err := s.addNegotiatedStreams(); err != nil {
		s.fail(CloseProtocolError, err)
		return
	}

	if s.audioStream != nil && s.cfg.AudioDecoder != nil && s.cfg.AudioSink != nil {
		go s.decodeAudioLoop()
	}

	s.mu.Lock()
	s.established = true
	s.mu.Unlock()

	if s.onEstablished != nil {
		s.onEstablished()
	}
}

func (s *Session) addNegotiatedStreams() error {
	if audio, ok := s.negotiator.Resolved(sdpneg.Audio); ok {
		stream, err := s.rtp.AddStream(rtpsession.StreamConfig{
			Type:        rtpsession.Audio,
			LocalSSRC:   audioLocalSSRC(s.negotiator),
			RemoteSSRC:  audio.RemoteSSRC,
			PayloadType: uint8(audio.PayloadType),
			ClockRate:   uint32(audio.Codec.ClockRate),
			CNAME:       "avs",
		})
		if err != nil {
			return newError(Internal, "adding audio stream", err)
		}
		s.audioStream = stream
	}
	if video, ok := s.negotiator.Resolved(sdpneg.Video); ok {
		stream, err := s.rtp.AddStream(rtpsession.StreamConfig{
			Type:        rtpsession.Video,
			LocalSSRC:   videoLocalSSRC(s.negotiator),
			RemoteSSRC:  video.RemoteSSRC,
			PayloadType: uint8(video.PayloadType),
			ClockRate:   uint32(video.Codec.ClockRate),
			CNAME:       "avs",
		})
		if err != nil {
			return newError(Internal, "adding video stream", err)
		}
		s.videoStream = stream
	}
	return nil
}

// audioLocalSSRC and videoLocalSSRC recover the local SSRCs assigned at
// Allocate time from the negotiator's own local session description,
// since Session does not keep a second copy of them.
func audioLocalSSRC(n *sdpneg.Negotiator) uint32 { return n.LocalSSRCs().Audio }
func videoLocalSSRC(n *sdpneg.Negotiator) uint32 { return n.LocalSSRCs().Video }

func (s *Session) fail(code CloseCode, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if s.onClose != nil {
		s.onClose(code, err)
	}
}

// --- Media start/stop ----------------------------------------------------

// StartMedia begins the RTP send/receive path. Permitted only once SDP is
// complete, ICE is ready, and DTLS has established SRTP keys.
func (s *Session) StartMedia() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.established {
		return newError(NotReady, "StartMedia called before session established", nil)
	}
	s.started = true
	s.held = false
	return nil
}

// StopMedia halts the RTP send path. Calling it when already stopped is a
// no-op.
func (s *Session) StopMedia() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Hold suspends outbound RTP transmission without tearing down ICE/DTLS;
// keepalives continue.
func (s *Session) Hold() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return newError(NotReady, "Hold called before media started", nil)
	}
	s.held = true
	return nil
}

// Unhold resumes outbound RTP transmission after Hold.
func (s *Session) Unhold() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	return nil
}

func (s *Session) readyForSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.held
}

// SendPCM encodes samples through the Config's AudioEncoder and sends the
// result as one RTP packet on the audio stream. Returns NotReady if no
// AudioEncoder was configured.
func (s *Session) SendPCM(ctx context.Context, samples media.PCM, marker bool, timestampDelta uint32) error {
	if s.cfg.AudioEncoder == nil {
		return newError(NotReady, "SendPCM called with no configured AudioEncoder", nil)
	}
	payload, err := s.cfg.AudioEncoder.Encode(samples)
	if err != nil {
		return newError(Internal, "encoding PCM", err)
	}
	return s.SendAudio(ctx, payload, marker, timestampDelta)
}

// decodeAudioLoop drains inbound audio RTP, decodes each payload through
// the Config's AudioDecoder, and writes the result to AudioSink. Exits
// when the audio stream's packet channel closes or the session is
// canceled.
func (s *Session) decodeAudioLoop() {
	for {
		select {
		case pkt, ok := <-s.audioStream.Packets():
			if !ok {
				return
			}
			samples, err := s.cfg.AudioDecoder.Decode(pkt.Payload)
			if err != nil {
				log.Warn("avs: dropping undecodable audio packet: %s", err)
				continue
			}
			if err := s.cfg.AudioSink.Write(samples); err != nil {
				log.Warn("avs: audio sink write failed: %s", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// SendAudio accepts an already-encoded payload and forwards it as RTP via
// the audio stream. Use SendPCM instead when a Config.AudioEncoder is
// available; SendAudio is the escape hatch for callers who encode outside
// this package.
func (s *Session) SendAudio(ctx context.Context, payload []byte, marker bool, timestampDelta uint32) error {
	if !s.readyForSend() {
		return newError(NotReady, "SendAudio called before media started", nil)
	}
	if s.audioStream == nil {
		return newError(NotReady, "SendAudio called with no negotiated audio stream", nil)
	}
	if err := s.audioStream.Send(ctx, payload, marker, timestampDelta); err != nil {
		return newError(ProtocolError, "sending audio RTP", err)
	}
	return nil
}

// SendRawRTP bypasses the audio pipeline entirely, for callers using
// external encoders: it sends an already-encoded video payload as one RTP
// packet on the video stream, which adds the RTP header.
func (s *Session) SendRawRTP(ctx context.Context, payload []byte, marker bool, timestampDelta uint32) error {
	if !s.readyForSend() {
		return newError(NotReady, "SendRawRTP called before media started", nil)
	}
	if s.videoStream == nil {
		return newError(NotReady, "SendRawRTP called with no negotiated video stream", nil)
	}
	if err := s.videoStream.Send(ctx, payload, marker, timestampDelta); err != nil {
		return newError(ProtocolError, "sending raw RTP", err)
	}
	return nil
}

// SendRawRTCP writes a pre-marshaled RTCP packet directly, bypassing the
// coordinator's own receiver-report scheduling.
func (s *Session) SendRawRTCP(raw []byte) error {
	if s.srtpSession == nil {
		return newError(NotReady, "SendRawRTCP called before SRTP established", nil)
	}
	writeStream, err := s.srtpSession.OpenWriteStreamRTCP()
	if err != nil {
		return newError(Internal, "opening RTCP write stream", err)
	}
	if _, err := writeStream.Write(raw); err != nil {
		return newError(ProtocolError, "writing raw RTCP", err)
	}
	return nil
}

// AudioPackets exposes the channel of decoded audio RTP packets for
// callers that want raw access instead of registering a handler.
func (s *Session) AudioPackets() <-chan *pionrtp.Packet {
	if s.audioStream == nil {
		return nil
	}
	return s.audioStream.Packets()
}

// --- Introspection -------------------------------------------------------

// ID returns the session's unique identifier, generated at Allocate time
// and stable for the session's lifetime. Useful for correlating log lines
// and stats across a session's establishment.
func (s *Session) ID() uuid.UUID { return s.id }

// Established reports whether ICE/DTLS/SRTP have all completed.
func (s *Session) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

// Started reports whether media transmission is active (started and not
// held).
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.held
}

// Stats returns a read-only snapshot of establishment latencies and DTLS
// packet counters.
func (s *Session) Stats() MediaStats { return s.stats.snapshot() }

// Close tears down the session: cancels the network-thread context,
// closes the mux (and with it, ICE, DTLS, and SRTP), and invokes the close
// handler with CloseNormal if it has not already fired.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	var firstErr error
	if s.rtp != nil {
		if err := s.rtp.Close(); err != nil {
			firstErr = err
		}
	}
	if s.mux != nil {
		if err := s.mux.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.iceAgent.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if s.onClose != nil {
		s.onClose(CloseNormal, nil)
	}
	return firstErr
}
