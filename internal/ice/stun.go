package ice

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pion/stun/v3"
)

// STUN (Session Traversal Utilities for NAT)
// RFC 5389 (https://tools.ietf.org/html/rfc5389), built on
// github.com/pion/stun/v3's message codec. RFC8445's own
// connectivity-check attributes (PRIORITY, USE-CANDIDATE, ICE-CONTROLLED,
// ICE-CONTROLLING) have no typed helper in pion/stun, so they round-trip
// as raw attributes via Message.Add/Attributes.Get.

type stunMessage struct {
	// Message class, mirroring stun.MessageClass.
	class uint16

	// Globally unique transaction ID, 12 bytes.
	transactionID string

	raw *stun.Message
}

// Allowed STUN message classes.
const (
	stunRequest         = uint16(stun.ClassRequest)
	stunIndication      = uint16(stun.ClassIndication)
	stunSuccessResponse = uint16(stun.ClassSuccessResponse)
	stunErrorResponse   = uint16(stun.ClassErrorResponse)
)

const stunBindingMethod = uint16(stun.MethodBinding)

// RFC8445 connectivity-check attributes; not defined by core STUN.
const (
	attrPriority       stun.AttrType = 0x0024
	attrUseCandidate   stun.AttrType = 0x0025
	attrIceControlled  stun.AttrType = 0x8029
	attrIceControlling stun.AttrType = 0x802A
)

// Returns (nil, nil) if the data is not a STUN message.
func parseStunMessage(data []byte) (*stunMessage, error) {
	if !stun.IsMessage(data) {
		return nil, nil
	}

	m := new(stun.Message)
	m.Raw = append([]byte(nil), data...)
	if err := m.Decode(); err != nil {
		return nil, err
	}

	return &stunMessage{
		class:         uint16(m.Type.Class),
		transactionID: string(m.TransactionID[:]),
		raw:           m,
	}, nil
}

func (sm *stunMessage) String() string {
	return sm.raw.String()
}

// If transactionID is empty, a random transaction ID is generated.
func newStunMessage(class stun.MessageClass, method stun.Method, transactionID string) *stunMessage {
	var tid [stun.TransactionIDSize]byte
	switch {
	case transactionID == "":
		var err error
		tid, err = stun.NewTransactionID()
		if err != nil {
			panic(fmt.Sprintf("ice: failed to generate STUN transaction ID: %s", err))
		}
	case len(transactionID) != stun.TransactionIDSize:
		panic("ice: invalid STUN transaction ID length")
	default:
		copy(tid[:], transactionID)
	}

	m := &stun.Message{
		Type:          stun.NewType(method, class),
		TransactionID: tid,
	}
	m.WriteHeader()

	return &stunMessage{class: uint16(class), transactionID: string(tid[:]), raw: m}
}

func newStunBindingRequest(transactionID string) *stunMessage {
	return newStunMessage(stun.ClassRequest, stun.MethodBinding, transactionID)
}

// newConnectivityCheck builds a STUN binding request per [RFC8445 §7.2.4],
// carrying the USERNAME, PRIORITY, and role attribute (ICE-CONTROLLING or
// ICE-CONTROLLED with the agent's tie-breaker) needed for a connectivity
// check.
func newConnectivityCheck(username string, priority uint32, role Role, tieBreaker uint64, useCandidate bool) *stunMessage {
	sm := newStunBindingRequest("")
	sm.addUsername(username)
	sm.addPriority(priority)

	tb := make([]byte, 8)
	binary.BigEndian.PutUint64(tb, tieBreaker)
	if role == Controlling {
		sm.raw.Add(attrIceControlling, tb)
		if useCandidate {
			sm.raw.Add(attrUseCandidate, nil)
		}
	} else {
		sm.raw.Add(attrIceControlled, tb)
	}
	return sm
}

func newStunBindingResponse(transactionID string, raddr net.Addr, password string) *stunMessage {
	sm := newStunMessage(stun.ClassSuccessResponse, stun.MethodBinding, transactionID)
	sm.setXorMappedAddress(raddr)
	sm.addMessageIntegrity(password)
	sm.addFingerprint()
	return sm
}

func newStunBindingIndication() *stunMessage {
	sm := newStunMessage(stun.ClassIndication, stun.MethodBinding, "")
	sm.addFingerprint()
	return sm
}

func (sm *stunMessage) addUsername(username string) {
	if err := stun.NewUsername(username).AddTo(sm.raw); err != nil {
		panic(fmt.Sprintf("ice: failed to add USERNAME attribute: %s", err))
	}
}

func (sm *stunMessage) addPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	sm.raw.Add(attrPriority, v)
}

func (sm *stunMessage) getPriority() uint32 {
	attr, ok := sm.raw.Attributes.Get(attrPriority)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint32(attr.Value)
}

// Check if the STUN message has a USE-CANDIDATE attribute.
func (sm *stunMessage) hasUseCandidate() bool {
	_, ok := sm.raw.Attributes.Get(attrUseCandidate)
	return ok
}

func (sm *stunMessage) setXorMappedAddress(addr net.Addr) {
	var ip net.IP
	var port int
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, port = a.IP, a.Port
	case *net.TCPAddr:
		ip, port = a.IP, a.Port
	}

	xorAddr := &stun.XORMappedAddress{IP: ip, Port: port}
	if err := xorAddr.AddTo(sm.raw); err != nil {
		panic(fmt.Sprintf("ice: failed to add XOR-MAPPED-ADDRESS attribute: %s", err))
	}
}

func (sm *stunMessage) getMappedAddress() *net.UDPAddr {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(sm.raw); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}
	}

	var mappedAddr stun.MappedAddress
	if err := mappedAddr.GetFrom(sm.raw); err == nil {
		return &net.UDPAddr{IP: mappedAddr.IP, Port: mappedAddr.Port}
	}

	return nil
}

// RFC 5389 Section 15.4. MESSAGE-INTEGRITY
func (sm *stunMessage) addMessageIntegrity(password string) {
	if err := stun.NewShortTermIntegrity(password).AddTo(sm.raw); err != nil {
		panic(fmt.Sprintf("ice: failed to add MESSAGE-INTEGRITY attribute: %s", err))
	}
}

// RFC 5389 Section 15.5. FINGERPRINT
func (sm *stunMessage) addFingerprint() {
	if err := stun.Fingerprint.AddTo(sm.raw); err != nil {
		panic(fmt.Sprintf("ice: failed to add FINGERPRINT attribute: %s", err))
	}
}

func (sm *stunMessage) Bytes() []byte {
	return sm.raw.Raw
}
