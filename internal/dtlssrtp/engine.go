package dtlssrtp

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strings"
	"sync/atomic"

	"github.com/pion/dtls/v3"
	"github.com/pion/dtls/v3/pkg/crypto/fingerprint"
	"github.com/pion/srtp/v3"

	"github.com/maniacs-satm/avs/internal/logging"
)

var log = logging.DefaultLogger.WithTag("dtlssrtp")

// Fingerprint is a parsed SDP "a=fingerprint" attribute, e.g.
// "sha-256 AB:CD:...".
type Fingerprint struct {
	Algorithm string
	Value     string
}

// ParseFingerprint parses the value following "a=fingerprint:".
func ParseFingerprint(attr string) (Fingerprint, error) {
	fields := strings.Fields(attr)
	if len(fields) != 2 {
		return Fingerprint{}, errFingerprintMismatch
	}
	return Fingerprint{Algorithm: fields[0], Value: fields[1]}, nil
}

// String renders the fingerprint back into SDP attribute form.
func (f Fingerprint) String() string {
	return f.Algorithm + " " + f.Value
}

// Session is a completed DTLS 1.2 handshake together with the SRTP master
// keys/salts derived from it. It does not itself carry SRTP/SRTCP traffic;
// see internal/srtp for that, keyed from Session.Keys.
type Session struct {
	dtlsConn *dtls.Conn
	conn     *countingConn
	Keys     srtp.SessionKeys
}

// PacketsSent reports the number of DTLS datagrams written to the wire
// over the lifetime of the handshake connection.
func (s *Session) PacketsSent() uint64 { return atomic.LoadUint64(&s.conn.sent) }

// PacketsReceived reports the number of DTLS datagrams read from the wire
// over the lifetime of the handshake connection.
func (s *Session) PacketsReceived() uint64 { return atomic.LoadUint64(&s.conn.received) }

// countingConn counts packets crossing a net.Conn, without altering its
// read/write semantics, so the handshake's sent/received counters can be
// reported without instrumenting pion/dtls itself.
type countingConn struct {
	net.Conn
	sent     uint64
	received uint64
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err == nil {
		atomic.AddUint64(&c.sent, 1)
	}
	return n, err
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err == nil {
		atomic.AddUint64(&c.received, 1)
	}
	return n, err
}

// LocalFingerprint computes the fingerprint to advertise in our own SDP
// offer/answer for cert, using SHA-256 as the teacher's stack does.
func LocalFingerprint(cert tls.Certificate) (Fingerprint, error) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return Fingerprint{}, err
	}
	value, err := fingerprint.Fingerprint(leaf, crypto.SHA256)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Algorithm: "sha-256", Value: value}, nil
}

// Handshake runs a DTLS 1.2 handshake over conn (a demultiplexed endpoint
// carrying only DTLS-classified packets, see internal/mux), verifies the
// remote certificate against remoteFingerprint, and derives the SRTP master
// keys and salts (Session.Keys) from the handshake's keying material.
//
// isClient selects the DTLS role; per [RFC5763 §5] the ICE-controlling
// agent plays the DTLS client unless the SDP setup attribute says
// otherwise.
func Handshake(conn net.Conn, cert tls.Certificate, remoteFingerprint Fingerprint, isClient bool) (*Session, error) {
	config := &dtls.Config{
		Certificates:           []tls.Certificate{cert},
		SRTPProtectionProfiles: []dtls.SRTPProtectionProfile{dtls.SRTP_AES128_CM_HMAC_SHA1_80},
		ClientAuth:             dtls.RequireAnyClientCert,
		InsecureSkipVerify:     true,
	}

	cc := &countingConn{Conn: conn}

	var dtlsConn *dtls.Conn
	var err error
	if isClient {
		log.Debug("Starting DTLS handshake as client")
		dtlsConn, err = dtls.Client(cc, config)
	} else {
		log.Debug("Starting DTLS handshake as server")
		dtlsConn, err = dtls.Server(cc, config)
	}
	if err != nil {
		return nil, err
	}

	if err := verifyFingerprint(dtlsConn, remoteFingerprint); err != nil {
		dtlsConn.Close()
		return nil, err
	}

	keys, err := exportSessionKeys(dtlsConn, isClient)
	if err != nil {
		dtlsConn.Close()
		return nil, err
	}

	return &Session{dtlsConn: dtlsConn, conn: cc, Keys: keys}, nil
}

func verifyFingerprint(conn *dtls.Conn, remote Fingerprint) error {
	certs := conn.RemoteCertificate()
	if len(certs) == 0 {
		return errNoRemoteCertificate
	}
	remoteCert, err := x509.ParseCertificate(certs[0])
	if err != nil {
		return err
	}

	hash, err := fingerprint.HashFromString(remote.Algorithm)
	if err != nil {
		return err
	}
	value, err := fingerprint.Fingerprint(remoteCert, hash)
	if err != nil {
		return err
	}
	if !strings.EqualFold(value, remote.Value) {
		return errFingerprintMismatch
	}
	return nil
}

// exportSessionKeys derives SRTP master keys/salts via the RFC5705 exporter,
// replicating srtp.Config.ExtractSessionKeysFromDTLS by hand rather than
// calling it, so the derivation is independently verifiable against the raw
// exporter output.
func exportSessionKeys(conn *dtls.Conn, isClient bool) (srtp.SessionKeys, error) {
	material, err := conn.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", nil, exportedKeyingMaterialLen)
	if err != nil {
		return srtp.SessionKeys{}, err
	}
	return splitKeyingMaterial(material, isClient)
}

// Close tears down the underlying DTLS connection.
func (s *Session) Close() error {
	return s.dtlsConn.Close()
}
