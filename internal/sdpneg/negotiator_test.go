package sdpneg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(ufrag, pwd string) Config {
	return Config{
		Ufrag:    ufrag,
		Password: pwd,
		Fingerprint: Fingerprint{
			Algorithm: "sha-256",
			Value:     "AA:BB:CC:DD",
		},
		AudioCodecs: []Codec{{Name: "opus", ClockRate: 48000, Channels: 2}},
		VideoCodecs: []Codec{{Name: "H264", ClockRate: 90000, Format: "packetization-mode=1"}},
		LocalSSRCs: SSRCSet{
			Audio:       1111,
			Video:       2222,
			VideoRTX:    3333,
			HasVideo:    true,
			HasVideoRTX: true,
		},
		OriginAddress: "203.0.113.1",
	}
}

func TestStateTransitionTable(t *testing.T) {
	s := Init
	s2, err := s.transition("generate_offer")
	require.NoError(t, err)
	assert.Equal(t, LocalOffer, s2)

	s3, err := s2.transition("handle_answer")
	require.NoError(t, err)
	assert.Equal(t, RemoteAnswer, s3)

	s4, err := s3.transition("complete")
	require.NoError(t, err)
	assert.Equal(t, Complete, s4)

	_, err = s4.transition("generate_offer")
	assert.ErrorIs(t, err, errInvalidTransition)

	s5, err := s4.transition("reset")
	require.NoError(t, err)
	assert.Equal(t, Init, s5)
}

func TestOffererAnswererRoundTrip(t *testing.T) {
	offerer := New(testConfig("offerufrag", "offerpwd0123456789012345"))
	answerer := New(testConfig("answerufrag", "answerpwd0123456789012345"))

	offer, err := offerer.GenerateOffer()
	require.NoError(t, err)
	assert.Equal(t, LocalOffer, offerer.State())
	assert.True(t, strings.Contains(offer, "a=setup:actpass"))
	assert.True(t, strings.Contains(offer, "m=audio"))
	assert.True(t, strings.Contains(offer, "m=video"))
	assert.True(t, strings.Contains(offer, "a=ssrc-group:FID 2222 3333"))

	answer, err := answerer.OfferAnswer(offer)
	require.NoError(t, err)
	assert.Equal(t, Complete, answerer.State())
	assert.True(t, strings.Contains(answer, "a=setup:active"))

	resolvedAudio, ok := answerer.Resolved(Audio)
	require.True(t, ok)
	assert.Equal(t, "opus", resolvedAudio.Codec.Name)
	assert.Equal(t, uint32(1111), resolvedAudio.RemoteSSRC)

	err = offerer.HandleAnswer(answer)
	require.NoError(t, err)
	assert.Equal(t, Complete, offerer.State())

	resolvedVideo, ok := offerer.Resolved(Video)
	require.True(t, ok)
	assert.Equal(t, "H264", resolvedVideo.Codec.Name)
	assert.Equal(t, uint32(2222), resolvedVideo.RemoteSSRC)
}

func TestHandleAnswerBeforeOfferIsInvalid(t *testing.T) {
	n := New(testConfig("u", "p"))
	err := n.HandleAnswer("v=0\r\n")
	assert.ErrorIs(t, err, errInvalidTransition)
}

func TestGenerateAnswerWithoutOfferIsInvalid(t *testing.T) {
	n := New(testConfig("u", "p"))
	_, err := n.GenerateAnswer()
	assert.ErrorIs(t, err, errInvalidTransition)
}

func TestHandleOfferMissingFingerprintFails(t *testing.T) {
	n := New(testConfig("u", "p"))
	offer := "v=0\r\n" +
		"o=- 0 2 IN IP4 203.0.113.9\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"a=mid:audio\r\n" +
		"a=ice-ufrag:remoteufrag\r\n" +
		"a=ice-pwd:remotepwd01234567890123\r\n" +
		"a=setup:actpass\r\n" +
		"a=rtpmap:96 opus/48000/2\r\n" +
		"a=ssrc:4444 cname:remote\r\n"
	err := n.HandleOffer(offer)
	assert.ErrorIs(t, err, errMissingFingerprint)
	assert.Equal(t, Init, n.State())
}

func TestAddRemoteCandidateIgnoredAfterEndOfCandidates(t *testing.T) {
	n := New(testConfig("u", "p"))
	require.NoError(t, n.AddRemoteCandidate("1 1 UDP 2130706431 198.51.100.1 5000 typ host"))
	require.NoError(t, n.AddRemoteCandidate(""))
	require.NoError(t, n.AddRemoteCandidate("2 1 UDP 2130706431 198.51.100.2 5001 typ host"))
	assert.Len(t, n.RemoteCandidates(), 1)
}

func TestPrivacyModeSuppressesHostCandidates(t *testing.T) {
	cfg := testConfig("u", "p")
	cfg.PrivacyMode = true
	n := New(cfg)
	n.AddLocalCandidate("candidate:1 1 UDP 2130706431 198.51.100.1 5000 typ host")
	n.AddLocalCandidate("candidate:2 1 UDP 1694498815 203.0.113.1 5000 typ relay raddr 198.51.100.1 rport 5000")
	assert.Len(t, n.localCandidates, 1)
	assert.True(t, strings.Contains(n.localCandidates[0], "typ relay"))
}

func TestReset(t *testing.T) {
	n := New(testConfig("u", "p"))
	_, err := n.GenerateOffer()
	require.NoError(t, err)
	n.Reset()
	assert.Equal(t, Init, n.State())
	_, ok := n.Resolved(Audio)
	assert.False(t, ok)
}
