package mux

// MatchFunc allows custom logic for mapping incoming packets to an Endpoint.
type MatchFunc func(packet []byte) bool

// Packet classification for a single UDP 5-tuple carrying STUN, DTLS, and
// RTP/RTCP all multiplexed together (a "bundled" ICE component).
//
// Unlike RFC 7983 (which reserves 0-3 for STUN), this classifies the first
// byte of the datagram as:
//
//	b <  2            STUN   (message class top two bits are both zero)
//	20 <= b <= 63     DTLS   (ContentType range for the DTLS record layer)
//	128 <= b <= 191   RTP/RTCP (version 2 in the top two bits of byte 0)
//
// RTP and RTCP share the 128-191 range; they are disambiguated by the packet
// type carried in the second byte.
func MatchSTUN(b []byte) bool {
	return len(b) > 0 && b[0] < 2
}

func MatchDTLS(b []byte) bool {
	return len(b) > 0 && b[0] >= 20 && b[0] <= 63
}

// MatchRange matches packets whose first byte is in [lower, upper].
func MatchRange(lower, upper byte) MatchFunc {
	return func(b []byte) bool {
		return len(b) > 0 && b[0] >= lower && b[0] <= upper
	}
}

// RTCP packet types, per RFC 3550 §6 and RFC 4585.
const (
	rtcpPacketTypeMin = 192
	rtcpPacketTypeMax = 223
)

func MatchRTP(b []byte) bool {
	if len(b) < 2 || b[0] < 128 || b[0] > 191 {
		return false
	}
	return b[1] < rtcpPacketTypeMin || b[1] > rtcpPacketTypeMax
}

func MatchRTCP(b []byte) bool {
	if len(b) < 2 || b[0] < 128 || b[0] > 191 {
		return false
	}
	return b[1] >= rtcpPacketTypeMin && b[1] <= rtcpPacketTypeMax
}
