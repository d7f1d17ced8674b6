package rtpsession

import (
	"context"
	"encoding/binary"

	"github.com/pion/rtp"
)

// SendRetransmit re-sends an original video packet on the RTX stream per
// [RFC4588 §4]: the original sequence number is prepended to the payload,
// and the packet is sent under the RTX SSRC/payload type instead of the
// original ones.
func (s *Stream) SendRetransmit(ctx context.Context, original *rtp.Packet) error {
	osn := make([]byte, 2)
	binary.BigEndian.PutUint16(osn, original.SequenceNumber)
	payload := append(osn, original.Payload...)

	header := &rtp.Header{
		Version:        2,
		Marker:         original.Marker,
		PayloadType:    s.cfg.PayloadType,
		SequenceNumber: s.seq,
		Timestamp:      original.Timestamp,
		SSRC:           s.cfg.LocalSSRC,
	}
	s.seq++

	_, err := s.session.writeStream.WriteRTP(ctx, header, payload)
	return err
}

// DecodeRetransmit extracts the original sequence number and payload from a
// packet received on an RTX stream.
func DecodeRetransmit(pkt *rtp.Packet) (originalSeq uint16, payload []byte, ok bool) {
	if len(pkt.Payload) < 2 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint16(pkt.Payload[:2]), pkt.Payload[2:], true
}
