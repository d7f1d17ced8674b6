package rtpsession

import (
	"context"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// Stream is one negotiated SSRC pair (local send, remote receive) within a
// Session. Packet fields the caller does not supply (sequence number,
// timestamp) are tracked here.
type Stream struct {
	session *Session
	cfg     StreamConfig

	seq       uint16
	timestamp uint32

	in chan *rtp.Packet // inbound depacketized RTP, read via Packets()

	rtcpStats ReceptionStats
}

func newStream(s *Session, cfg StreamConfig) (*Stream, error) {
	return &Stream{
		session: s,
		cfg:     cfg,
		in:      make(chan *rtp.Packet, 64),
	}, nil
}

// Type reports which media this stream carries.
func (s *Stream) Type() MediaType { return s.cfg.Type }

// LocalSSRC reports the stream's local synchronization source.
func (s *Stream) LocalSSRC() uint32 { return s.cfg.LocalSSRC }

// RemoteSSRC reports the stream's remote synchronization source.
func (s *Stream) RemoteSSRC() uint32 { return s.cfg.RemoteSSRC }

// Packets exposes the channel of depacketized inbound RTP packets.
func (s *Stream) Packets() <-chan *rtp.Packet { return s.in }

// Send packetizes payload as one RTP packet on this stream's SSRC, advancing
// the sequence number and timestamp (by timestampDelta clock ticks) every
// call. Payload framing (fragmentation across the codec's preferred packet
// size) is the caller's responsibility; this module only ever emits one RTP
// packet per Send.
func (s *Stream) Send(ctx context.Context, payload []byte, marker bool, timestampDelta uint32) error {
	header := &rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    s.cfg.PayloadType,
		SequenceNumber: s.seq,
		Timestamp:      s.timestamp,
		SSRC:           s.cfg.LocalSSRC,
	}
	s.seq++
	s.timestamp += timestampDelta

	_, err := s.session.writeStream.WriteRTP(ctx, header, payload)
	return err
}

// readRTPLoop depacketizes inbound SRTP traffic for this stream's remote
// SSRC and forwards it on the in channel until the read stream closes.
func (s *Stream) readRTPLoop() {
	readStream, err := s.session.srtp.OpenReadStream(s.cfg.RemoteSSRC)
	if err != nil {
		log.Warn("rtpsession: failed to open read stream for ssrc=%d: %s", s.cfg.RemoteSSRC, err)
		close(s.in)
		return
	}

	buf := make([]byte, 1500)
	for {
		n, err := readStream.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Debug("rtpsession: read stream for ssrc=%d closed: %s", s.cfg.RemoteSSRC, err)
			}
			close(s.in)
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Warn("rtpsession: malformed RTP packet on ssrc=%d: %s", s.cfg.RemoteSSRC, err)
			continue
		}
		s.rtcpStats.observe(pkt.SequenceNumber)

		select {
		case s.in <- pkt:
		case <-s.session.ctx.Done():
			return
		}
	}
}

// readRTCPLoop parses inbound RTCP compound packets for this stream's
// remote SSRC and folds sender reports into rtcpStats.
func (s *Stream) readRTCPLoop() {
	readStream, err := s.session.srtp.OpenReadStreamRTCP(s.cfg.RemoteSSRC)
	if err != nil {
		log.Warn("rtpsession: failed to open RTCP read stream for ssrc=%d: %s", s.cfg.RemoteSSRC, err)
		return
	}

	buf := make([]byte, 1500)
	for {
		n, err := readStream.Read(buf)
		if err != nil {
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			log.Warn("rtpsession: malformed RTCP compound packet on ssrc=%d: %s", s.cfg.RemoteSSRC, err)
			continue
		}
		for _, p := range packets {
			s.handleRTCP(p)
		}
	}
}

func (s *Stream) handleRTCP(p rtcp.Packet) {
	switch pkt := p.(type) {
	case *rtcp.SenderReport:
		s.rtcpStats.recordSenderReport(pkt)
	case *rtcp.ReceiverReport:
		s.rtcpStats.recordReceiverReport(pkt)
	case *rtcp.Goodbye:
		log.Debug("rtpsession: received BYE for ssrc=%d: %s", s.cfg.RemoteSSRC, pkt.Reason)
	}
}

// Stats returns the most recently observed reception statistics for this
// stream's remote SSRC.
func (s *Stream) Stats() ReceptionStats {
	return s.rtcpStats
}
