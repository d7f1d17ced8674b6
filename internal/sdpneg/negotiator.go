package sdpneg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maniacs-satm/avs/internal/sdp"
)

// MediaKind is the media-section type this module negotiates.
type MediaKind int

const (
	Audio MediaKind = iota
	Video
)

func (k MediaKind) String() string {
	if k == Video {
		return "video"
	}
	return "audio"
}

// Payload type ranges, per spec: audio uses the low end of the dynamic
// range, video the rest.
const (
	audioPayloadTypeBase = 96
	audioPayloadTypeMax  = 99
	videoPayloadTypeBase = 100
	videoPayloadTypeMax  = 110
)

// Codec is one entry in a session's codec list, in preference order.
type Codec struct {
	Name      string // SDP rtpmap encoding name, e.g. "opus", "H264"
	ClockRate int
	Channels  int // 0 when not applicable (video)
	Format    string
}

// Fingerprint mirrors dtlssrtp.Fingerprint without importing it, keeping
// this package usable standalone from DTLS specifics.
type Fingerprint struct {
	Algorithm string
	Value     string
}

func (f Fingerprint) String() string { return f.Algorithm + " " + f.Value }

// SSRCSet holds the local (or remote) SSRCs this module tracks per the
// spec's per-media-type bookkeeping.
type SSRCSet struct {
	Audio         uint32
	Video         uint32
	VideoRTX      uint32
	HasVideo      bool
	HasVideoRTX   bool
}

// Config is everything the negotiator needs to generate offers/answers; it
// is supplied by the coordinator and never mutated by this package.
type Config struct {
	Ufrag, Password string
	Fingerprint     Fingerprint
	AudioCodecs     []Codec
	VideoCodecs     []Codec
	LocalSSRCs      SSRCSet
	PrivacyMode     bool // suppress host candidates in outgoing SDP
	SessionName     string
	OriginAddress   string
}

// ResolvedMedia is what negotiation settles on for one media kind:
// negotiated payload type, codec, and remote SSRC.
type ResolvedMedia struct {
	Kind        MediaKind
	PayloadType int
	Codec       Codec
	RemoteSSRC  uint32
}

// Negotiator drives SDP offer/answer exchange and exposes the resolved
// parameters once negotiation completes.
type Negotiator struct {
	cfg   Config
	state State

	isOfferer bool

	localCandidates  []string
	endOfCandidates  bool

	remoteUfrag, remotePassword string
	remoteFingerprint           Fingerprint
	remoteSetup                 string
	remoteCandidates             []string
	remoteEndOfCandidates        bool

	resolved map[MediaKind]ResolvedMedia
}

// New creates a Negotiator in the INIT state.
func New(cfg Config) *Negotiator {
	return &Negotiator{
		cfg:      cfg,
		state:    Init,
		resolved: make(map[MediaKind]ResolvedMedia),
	}
}

// State reports the current negotiation phase.
func (n *Negotiator) State() State { return n.state }

// IsComplete reports whether both offer and answer have been processed.
func (n *Negotiator) IsComplete() bool { return n.state == Complete }

// Reset returns the negotiator to INIT, discarding any partial negotiation.
func (n *Negotiator) Reset() {
	n.state = Init
	n.isOfferer = false
	n.localCandidates = nil
	n.endOfCandidates = false
	n.remoteUfrag, n.remotePassword = "", ""
	n.remoteFingerprint = Fingerprint{}
	n.remoteSetup = ""
	n.remoteCandidates = nil
	n.remoteEndOfCandidates = false
	n.resolved = make(map[MediaKind]ResolvedMedia)
}

// AddLocalCandidate appends one local ICE candidate line (as rendered by
// internal/ice.Candidate.String) to be included in the next generated SDP.
// A no-op while PrivacyMode suppresses non-relayed candidates and desc is
// not a relay candidate.
func (n *Negotiator) AddLocalCandidate(desc string) {
	if n.cfg.PrivacyMode && !strings.Contains(desc, "typ relay") {
		return
	}
	n.localCandidates = append(n.localCandidates, desc)
}

// SetEndOfCandidates marks local gathering complete.
func (n *Negotiator) SetEndOfCandidates() { n.endOfCandidates = true }

// LocalSSRCs returns the SSRC set this negotiator was configured with.
func (n *Negotiator) LocalSSRCs() SSRCSet { return n.cfg.LocalSSRCs }

// RemoteFingerprint returns the DTLS fingerprint carried in the remote
// offer or answer, once one has been handled. Zero value until then.
func (n *Negotiator) RemoteFingerprint() Fingerprint { return n.remoteFingerprint }

// RemoteICECredentials returns the ICE ufrag/password carried in the
// remote offer or answer, once one has been handled.
func (n *Negotiator) RemoteICECredentials() (ufrag, password string) {
	return n.remoteUfrag, n.remotePassword
}

// LocalICECredentials returns the ICE ufrag/password this negotiator was
// configured to advertise.
func (n *Negotiator) LocalICECredentials() (ufrag, password string) {
	return n.cfg.Ufrag, n.cfg.Password
}

// GenerateOffer builds the local offer and advances to LOCAL_OFFER.
func (n *Negotiator) GenerateOffer() (string, error) {
	if _, err := n.state.transition("generate_offer"); err != nil {
		return "", err
	}
	n.isOfferer = true
	n.state = LocalOffer

	sess := n.buildSession("actpass", assignPayloadTypes(n.cfg.AudioCodecs, audioPayloadTypeBase, audioPayloadTypeMax),
		assignPayloadTypes(n.cfg.VideoCodecs, videoPayloadTypeBase, videoPayloadTypeMax))
	return sess.String(), nil
}

// HandleOffer parses a remote offer and advances to REMOTE_OFFER.
func (n *Negotiator) HandleOffer(text string) error {
	if _, err := n.state.transition("handle_offer"); err != nil {
		return err
	}
	sess, err := sdp.ParseSession(text)
	if err != nil {
		return err
	}
	if err := n.ingestRemote(sess); err != nil {
		return err
	}
	n.state = RemoteOffer
	return nil
}

// GenerateAnswer builds the local answer in response to a previously
// handled offer and advances to LOCAL_ANSWER.
//
// Setup rule: active if the offer was actpass or passive, passive if the
// offer was active.
func (n *Negotiator) GenerateAnswer() (string, error) {
	if _, err := n.state.transition("generate_answer"); err != nil {
		return "", err
	}

	setup := "active"
	if n.remoteSetup == "active" {
		setup = "passive"
	}

	audioPT := assignPayloadTypesMatching(n.cfg.AudioCodecs, n.remoteResolvedCodec(Audio), audioPayloadTypeBase, audioPayloadTypeMax)
	videoPT := assignPayloadTypesMatching(n.cfg.VideoCodecs, n.remoteResolvedCodec(Video), videoPayloadTypeBase, videoPayloadTypeMax)

	sess := n.buildSession(setup, audioPT, videoPT)
	n.state = LocalAnswer
	n.state, _ = n.state.transition("complete")
	return sess.String(), nil
}

// HandleAnswer parses a remote answer, resolves negotiated parameters, and
// advances to COMPLETE.
func (n *Negotiator) HandleAnswer(text string) error {
	if _, err := n.state.transition("handle_answer"); err != nil {
		return err
	}
	sess, err := sdp.ParseSession(text)
	if err != nil {
		return err
	}
	if err := n.ingestRemote(sess); err != nil {
		return err
	}
	n.state = RemoteAnswer
	n.state, _ = n.state.transition("complete")
	return nil
}

// OfferAnswer is the single-call convenience form: given a remote offer,
// handle it and return the generated answer.
func (n *Negotiator) OfferAnswer(offer string) (string, error) {
	if err := n.HandleOffer(offer); err != nil {
		return "", err
	}
	return n.GenerateAnswer()
}

// Resolved returns the negotiated parameters for kind, if negotiation has
// progressed far enough to resolve them.
func (n *Negotiator) Resolved(kind MediaKind) (ResolvedMedia, bool) {
	r, ok := n.resolved[kind]
	return r, ok
}

// RemoteCandidates returns every remote candidate line seen so far.
func (n *Negotiator) RemoteCandidates() []string {
	return append([]string(nil), n.remoteCandidates...)
}

// AddRemoteCandidate appends a trickled remote candidate line. Ignored once
// end-of-candidates has been observed, per spec boundary case.
func (n *Negotiator) AddRemoteCandidate(desc string) error {
	if n.remoteEndOfCandidates {
		return nil
	}
	if desc == "" {
		n.remoteEndOfCandidates = true
		return nil
	}
	n.remoteCandidates = append(n.remoteCandidates, desc)
	return nil
}

func (n *Negotiator) remoteResolvedCodec(kind MediaKind) *Codec {
	if r, ok := n.resolved[kind]; ok {
		return &r.Codec
	}
	return nil
}

func (n *Negotiator) buildSession(setup string, audioPT, videoPT map[int]Codec) sdp.Session {
	sess := sdp.Session{
		Version: 0,
		Origin: sdp.Origin{
			Username: "-", SessionId: "0", SessionVersion: 2,
			NetworkType: "IN", AddressType: "IP4", Address: n.cfg.OriginAddress,
		},
		Name: "-",
		Time: []sdp.Time{{}},
	}

	groups := []string{"BUNDLE"}
	if len(audioPT) > 0 {
		groups = append(groups, "audio")
	}
	if len(videoPT) > 0 {
		groups = append(groups, "video")
	}
	sess.Attributes = append(sess.Attributes, sdp.Attribute{Key: "group", Value: strings.Join(groups, " ")})

	if len(audioPT) > 0 {
		sess.Media = append(sess.Media, n.buildMedia(Audio, setup, audioPT, n.cfg.LocalSSRCs.Audio, 0, false))
	}
	if len(videoPT) > 0 {
		sess.Media = append(sess.Media, n.buildMedia(Video, setup, videoPT, n.cfg.LocalSSRCs.Video, n.cfg.LocalSSRCs.VideoRTX, n.cfg.LocalSSRCs.HasVideoRTX))
	}
	return sess
}

func (n *Negotiator) buildMedia(kind MediaKind, setup string, pts map[int]Codec, ssrc, rtxSSRC uint32, hasRTX bool) sdp.Media {
	var formats []string
	for pt := range pts {
		formats = append(formats, strconv.Itoa(pt))
	}

	m := sdp.Media{
		Type:   kind.String(),
		Port:   9,
		Proto:  "UDP/TLS/RTP/SAVPF",
		Format: formats,
		Connection: &sdp.Connection{
			NetworkType: "IN", AddressType: "IP4", Address: "0.0.0.0",
		},
	}

	m.Attributes = append(m.Attributes,
		sdp.Attribute{Key: "mid", Value: kind.String()},
		sdp.Attribute{Key: "ice-ufrag", Value: n.cfg.Ufrag},
		sdp.Attribute{Key: "ice-pwd", Value: n.cfg.Password},
		sdp.Attribute{Key: "fingerprint", Value: n.cfg.Fingerprint.String()},
		sdp.Attribute{Key: "setup", Value: setup},
		sdp.Attribute{Key: "rtcp-mux", Value: ""},
	)

	for pt, codec := range pts {
		rtpmap := fmt.Sprintf("%d %s/%d", pt, codec.Name, codec.ClockRate)
		if codec.Channels > 1 {
			rtpmap += fmt.Sprintf("/%d", codec.Channels)
		}
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "rtpmap", Value: rtpmap})
		if codec.Format != "" {
			m.Attributes = append(m.Attributes, sdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d %s", pt, codec.Format)})
		}
	}

	m.Attributes = append(m.Attributes, sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d cname:avs", ssrc)})
	if hasRTX {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "ssrc", Value: fmt.Sprintf("%d cname:avs", rtxSSRC)})
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "ssrc-group", Value: fmt.Sprintf("FID %d %d", ssrc, rtxSSRC)})
	}

	for _, c := range n.localCandidates {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "candidate", Value: strings.TrimPrefix(c, "candidate:")})
	}
	if n.endOfCandidates {
		m.Attributes = append(m.Attributes, sdp.Attribute{Key: "end-of-candidates", Value: ""})
	}

	return m
}

func (n *Negotiator) ingestRemote(sess sdp.Session) error {
	fps := sess.Attrs("fingerprint")
	if len(fps) == 0 {
		for _, m := range sess.Media {
			fps = append(fps, m.Attrs("fingerprint")...)
		}
	}
	if len(fps) == 0 {
		return errMissingFingerprint
	}
	fields := strings.Fields(fps[0])
	if len(fields) == 2 {
		n.remoteFingerprint = Fingerprint{Algorithm: fields[0], Value: fields[1]}
	}

	for _, m := range sess.Media {
		ufrag := m.GetAttr("ice-ufrag")
		pwd := m.GetAttr("ice-pwd")
		if ufrag != "" {
			n.remoteUfrag = ufrag
		}
		if pwd != "" {
			n.remotePassword = pwd
		}
		if setup := m.GetAttr("setup"); setup != "" {
			n.remoteSetup = setup
		}

		var kind MediaKind
		switch m.Type {
		case "audio":
			kind = Audio
		case "video":
			kind = Video
		default:
			continue
		}

		pt, codec, ok := firstRtpmap(m)
		if !ok {
			continue
		}
		ssrc := firstSSRC(m)
		n.resolved[kind] = ResolvedMedia{Kind: kind, PayloadType: pt, Codec: codec, RemoteSSRC: ssrc}

		for _, c := range m.Attrs("candidate") {
			n.remoteCandidates = append(n.remoteCandidates, "candidate:"+c)
		}
		if len(m.Attrs("end-of-candidates")) > 0 {
			n.remoteEndOfCandidates = true
		}
	}
	return nil
}

func firstRtpmap(m sdp.Media) (int, Codec, bool) {
	rtpmaps := m.Attrs("rtpmap")
	if len(rtpmaps) == 0 {
		return 0, Codec{}, false
	}
	fields := strings.Fields(rtpmaps[0])
	if len(fields) != 2 {
		return 0, Codec{}, false
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, Codec{}, false
	}
	nameRate := strings.Split(fields[1], "/")
	codec := Codec{Name: nameRate[0]}
	if len(nameRate) > 1 {
		codec.ClockRate, _ = strconv.Atoi(nameRate[1])
	}
	if len(nameRate) > 2 {
		codec.Channels, _ = strconv.Atoi(nameRate[2])
	}
	return pt, codec, true
}

func firstSSRC(m sdp.Media) uint32 {
	ssrcs := m.Attrs("ssrc")
	if len(ssrcs) == 0 {
		return 0
	}
	fields := strings.Fields(ssrcs[0])
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func assignPayloadTypes(codecs []Codec, base, max int) map[int]Codec {
	pts := make(map[int]Codec)
	pt := base
	for _, c := range codecs {
		if pt > max {
			log.Warn("sdpneg: dropping codec %s, payload type range exhausted", c.Name)
			break
		}
		pts[pt] = c
		pt++
	}
	return pts
}

// assignPayloadTypesMatching assigns payload types for an answer: if the
// offer already resolved a codec for this media kind, answer only that
// codec, under the first payload type of the local range (base); the
// offer's own payload type number is not echoed. Otherwise it falls back to offering the full local list (e.g. for a
// standalone GenerateOffer/GenerateAnswer pairing without a prior remote
// resolution).
func assignPayloadTypesMatching(local []Codec, remote *Codec, base, max int) map[int]Codec {
	if remote == nil {
		return assignPayloadTypes(local, base, max)
	}
	for _, c := range local {
		if strings.EqualFold(c.Name, remote.Name) {
			return map[int]Codec{base: c}
		}
	}
	return nil
}
