// Package avs implements a peer-to-peer real-time media session
// coordinator: ICE connectivity establishment, DTLS-SRTP key agreement,
// SDP offer/answer negotiation, and RTP/RTCP transport for a single voice
// or video call leg. Higher-level call signaling (who calls whom, ringing,
// presence) is out of scope; this package starts once two ends already
// have a channel to exchange SDP and candidates over.
package avs
