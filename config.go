package avs

import (
	"github.com/maniacs-satm/avs/internal/ice"
	"github.com/maniacs-satm/avs/internal/media"
	"github.com/maniacs-satm/avs/internal/sdpneg"
)

// NATMode selects how the ICE engine gathers candidates.
type NATMode int

const (
	// NATNone gathers host candidates only.
	NATNone NATMode = iota
	// NATTrickleICEDualStack gathers host, server-reflexive, and relayed
	// candidates over both IPv4 and IPv6, trickling each to the caller.
	NATTrickleICEDualStack
	// NATICELite runs the engine in ICE-lite mode: only host candidates
	// are gathered. The agent answers checks from the remote controller
	// and also sends its own connectivity checks, as in the other modes.
	NATICELite
	// NATTURNOnly gathers IPv4 host, server-reflexive (when STUNServers is
	// set) and relayed (when TURNServers is set) candidates; gathering is
	// not restricted to relayed candidates.
	NATTURNOnly
)

// Crypto is a bitmask of the key-agreement mechanisms a session will
// accept.
type Crypto int

const (
	CryptoDTLSSRTP Crypto = 1 << iota
	CryptoSDES
)

// Has reports whether mask includes c.
func (mask Crypto) Has(c Crypto) bool { return mask&c != 0 }

// Codec describes one entry of a session's offered codec list.
type Codec = sdpneg.Codec

// Config is the input to Allocate: everything the coordinator needs to
// construct a session, corresponding to the public allocate() contract's
// dtls_context, audio_codec_list, local_address, nat_mode, crypto_mask,
// and external_rtp_flag parameters.
type Config struct {
	// AudioCodecs and VideoCodecs are offered/answered in preference
	// order; the first entry is preferred.
	AudioCodecs []Codec
	VideoCodecs []Codec

	// LocalAddress is the address advertised in the SDP origin/connection
	// lines (o= and c=).
	LocalAddress string

	NATMode    NATMode
	CryptoMask Crypto

	// ExternalRTPFlag records the allocate() contract's external_rtp_flag.
	// The coordinator does not read it: SendPCM, SendAudio, SendRawRTP and
	// SendRawRTCP are available whether or not it is set.
	ExternalRTPFlag bool

	// EnableVideoRTX negotiates an RFC4588 retransmission SSRC alongside
	// the video SSRC.
	EnableVideoRTX bool

	// PrivacyMode suppresses host candidates from outgoing SDP; only
	// relayed candidates are advertised.
	PrivacyMode bool

	STUNServers []string
	TURNServers []ice.TURNServerConfig

	// AudioEncoder and AudioDecoder are external codec collaborators. When
	// set, SendPCM encodes through AudioEncoder before framing RTP, and
	// received audio packets are decoded through AudioDecoder and
	// delivered to AudioSink. Leave nil to drive SendAudio/AudioPackets
	// with already-encoded payloads directly.
	AudioEncoder media.Encoder
	AudioDecoder media.Decoder
	AudioSink    media.AudioSink
}

func (c Config) iceRole() ice.Role {
	if c.NATMode == NATICELite {
		return ice.Lite
	}
	return ice.Controlling
}

func (c Config) iceConfig() ice.Config {
	cfg := ice.Config{
		Role:        c.iceRole(),
		STUNServers: c.STUNServers,
		TURNServers: c.TURNServers,
		EnableIPv6:  c.NATMode == NATTrickleICEDualStack,
	}
	if c.NATMode == NATNone {
		cfg.STUNServers, cfg.TURNServers = nil, nil
	}
	return cfg
}
