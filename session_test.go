package avs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AudioCodecs: []Codec{{Name: "opus", ClockRate: 48000, Channels: 2}},
		LocalAddress: "127.0.0.1",
		NATMode:      NATNone,
		CryptoMask:   CryptoDTLSSRTP,
	}
}

func TestAllocateProducesUsableOffer(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	offer, err := sess.GenerateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer, "m=audio")
	assert.Contains(t, offer, "a=setup:actpass")
	assert.Contains(t, offer, "a=fingerprint:sha-256")
}

func TestOfferAnswerRoundTripBetweenTwoSessions(t *testing.T) {
	offerer, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer offerer.Close()

	answerer, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer answerer.Close()

	offer, err := offerer.GenerateOffer()
	require.NoError(t, err)

	answer, err := answerer.OfferAnswer(offer)
	require.NoError(t, err)
	assert.Contains(t, answer, "a=setup:active")

	require.NoError(t, offerer.HandleAnswer(answer))

	assert.True(t, offerer.SDPComplete())
	assert.True(t, answerer.SDPComplete())
}

func TestStartMediaBeforeEstablishedReturnsNotReady(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.StartMedia()
	require.Error(t, err)
	var avsErr *Error
	require.ErrorAs(t, err, &avsErr)
	assert.Equal(t, NotReady, avsErr.Kind)
}

func TestStopMediaWhenAlreadyStoppedIsNoop(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.StopMedia())
	require.NoError(t, sess.StopMedia())
	assert.False(t, sess.Started())
}

func TestHoldBeforeStartedReturnsNotReady(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.Hold()
	require.Error(t, err)
	var avsErr *Error
	require.ErrorAs(t, err, &avsErr)
	assert.Equal(t, NotReady, avsErr.Kind)
}

func TestSendAudioBeforeMediaStartedReturnsNotReady(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.SendAudio(context.Background(), []byte("pcm"), false, 960)
	require.Error(t, err)
	var avsErr *Error
	require.ErrorAs(t, err, &avsErr)
	assert.Equal(t, NotReady, avsErr.Kind)
}

func TestStatsStartAtNotYetSentinel(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	stats := sess.Stats()
	assert.Equal(t, int64(StatNotYet), stats.NatEstabMs)
	assert.Equal(t, int64(StatNotYet), stats.DtlsEstabMs)
	assert.Equal(t, int64(StatNotYet), stats.TurnAllocMs)
}

func TestStartICEBeforeSDPCompleteReturnsNotReady(t *testing.T) {
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.StartICE()
	require.Error(t, err)
	var avsErr *Error
	require.ErrorAs(t, err, &avsErr)
	assert.Equal(t, NotReady, avsErr.Kind)
}

func TestCloseInvokesCloseHandlerExactlyOnce(t *testing.T) {
	calls := 0
	sess, err := Allocate(context.Background(), testConfig(), nil, nil, nil, func(code CloseCode, err error) {
		calls++
		assert.Equal(t, CloseNormal, code)
	})
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, calls)
}

func TestErrorKindString(t *testing.T) {
	e := newError(AuthenticationFailed, "fingerprint mismatch", nil)
	assert.Contains(t, e.Error(), "authentication-failed")
	assert.Contains(t, e.Error(), "fingerprint mismatch")
}
