package srtp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	pionsrtp "github.com/pion/srtp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func symmetricKeys() pionsrtp.SessionKeys {
	key := bytesOf(16, 0xAA)
	salt := bytesOf(14, 0xBB)
	return pionsrtp.SessionKeys{
		LocalMasterKey:   key,
		LocalMasterSalt:  salt,
		RemoteMasterKey:  key,
		RemoteMasterSalt: salt,
	}
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestSessionRoundTrip(t *testing.T) {
	rtpA, rtpB := net.Pipe()
	rtcpA, rtcpB := net.Pipe()

	keys := symmetricKeys()
	window := ReplayWindow{SRTP: 64, SRTCP: 64}

	sessionA, err := NewSession(rtpA, rtcpA, keys, window)
	require.NoError(t, err)
	defer sessionA.Close()

	sessionB, err := NewSession(rtpB, rtcpB, keys, window)
	require.NoError(t, err)
	defer sessionB.Close()

	writer, err := sessionA.OpenWriteStream()
	require.NoError(t, err)

	const ssrc = uint32(0x1234)
	header := &rtp.Header{
		Version:        2,
		PayloadType:    111,
		SequenceNumber: 1,
		Timestamp:      1000,
		SSRC:           ssrc,
	}
	payload := []byte("opus-frame")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var readBuf []byte
	go func() {
		defer close(done)
		reader, err := sessionB.OpenReadStream(ssrc)
		if err != nil {
			return
		}
		buf := make([]byte, 1500)
		n, err := reader.Read(buf)
		if err != nil {
			return
		}
		readBuf = buf[:n]
	}()

	_, err = writer.WriteRTP(ctx, header, payload)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RTP round trip")
	}

	require.NotEmpty(t, readBuf)
	pkt := &rtp.Packet{}
	require.NoError(t, pkt.Unmarshal(readBuf))
	assert.Equal(t, payload, []byte(pkt.Payload))
	assert.Equal(t, ssrc, pkt.SSRC)
}

func TestReplayWindowDefaults(t *testing.T) {
	rtpA, rtpB := net.Pipe()
	rtcpA, rtcpB := net.Pipe()
	keys := symmetricKeys()

	sessionA, err := NewSession(rtpA, rtcpA, keys, ReplayWindow{})
	require.NoError(t, err)
	defer sessionA.Close()

	sessionB, err := NewSession(rtpB, rtcpB, keys, ReplayWindow{})
	require.NoError(t, err)
	defer sessionB.Close()
}
