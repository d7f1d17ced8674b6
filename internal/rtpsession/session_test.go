package rtpsession

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	pionsrtp "github.com/pion/srtp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maniacs-satm/avs/internal/srtp"
)

func newLoopbackPair(t *testing.T) (*Session, *Session) {
	t.Helper()

	rtpA, rtpB := net.Pipe()
	rtcpA, rtcpB := net.Pipe()

	key := make([]byte, 16)
	salt := make([]byte, 14)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	keys := pionsrtp.SessionKeys{
		LocalMasterKey: key, LocalMasterSalt: salt,
		RemoteMasterKey: key, RemoteMasterSalt: salt,
	}

	srtpA, err := srtp.NewSession(rtpA, rtcpA, keys, srtp.ReplayWindow{})
	require.NoError(t, err)
	srtpB, err := srtp.NewSession(rtpB, rtcpB, keys, srtp.ReplayWindow{})
	require.NoError(t, err)

	sessionA, err := NewSession(context.Background(), srtpA)
	require.NoError(t, err)
	sessionB, err := NewSession(context.Background(), srtpB)
	require.NoError(t, err)

	return sessionA, sessionB
}

func TestSendReceiveAudioPacket(t *testing.T) {
	sessionA, sessionB := newLoopbackPair(t)
	defer sessionA.Close()
	defer sessionB.Close()

	streamA, err := sessionA.AddStream(StreamConfig{
		Type: Audio, LocalSSRC: 100, RemoteSSRC: 200, PayloadType: 96, ClockRate: 48000,
	})
	require.NoError(t, err)

	streamB, err := sessionB.AddStream(StreamConfig{
		Type: Audio, LocalSSRC: 200, RemoteSSRC: 100, PayloadType: 96, ClockRate: 48000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, streamA.Send(ctx, []byte("frame-1"), false, 960))

	select {
	case pkt := <-streamB.Packets():
		assert.Equal(t, []byte("frame-1"), []byte(pkt.Payload))
		assert.Equal(t, uint32(100), pkt.SSRC)
		assert.Equal(t, uint8(96), pkt.PayloadType)
	case <-ctx.Done():
		t.Fatal("timed out waiting for packet")
	}
}

func TestRetransmitRoundTrip(t *testing.T) {
	sessionA, sessionB := newLoopbackPair(t)
	defer sessionA.Close()
	defer sessionB.Close()

	rtxA, err := sessionA.AddStream(StreamConfig{
		Type: VideoRTX, LocalSSRC: 300, RemoteSSRC: 400, PayloadType: 101, ClockRate: 90000,
	})
	require.NoError(t, err)

	rtxB, err := sessionB.AddStream(StreamConfig{
		Type: VideoRTX, LocalSSRC: 400, RemoteSSRC: 300, PayloadType: 101, ClockRate: 90000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	original := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    100,
			SequenceNumber: 42,
			Timestamp:      90000,
			SSRC:           300,
		},
		Payload: []byte("video-frame"),
	}
	require.NoError(t, rtxA.SendRetransmit(ctx, original))

	select {
	case pkt := <-rtxB.Packets():
		seq, payload, ok := DecodeRetransmit(pkt)
		require.True(t, ok)
		assert.Equal(t, uint16(42), seq)
		assert.Equal(t, []byte("video-frame"), payload)
	case <-ctx.Done():
		t.Fatal("timed out waiting for retransmitted packet")
	}
}
