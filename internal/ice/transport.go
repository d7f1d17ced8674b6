package ice

import (
	"fmt"
	"net"
	"strings"
)

// UDP and TCP are the transport protocols ICE candidates may use. Only UDP
// is exercised by this module; TCP candidates are parsed (for SDP
// interoperability) but never gathered locally.
const (
	UDP = "udp"
	TCP = "tcp"
)

// TransportAddress is a (protocol, IP, port) tuple, normalized so that it can
// be compared with ==.
type TransportAddress struct {
	protocol  string // "tcp" or "udp"
	ip        string
	port      int
	family    int  // 4 or 6
	linkLocal bool
}

func makeTransportAddress(addr net.Addr) TransportAddress {
	var protocol, ip string
	var port int
	switch a := addr.(type) {
	case *net.TCPAddr:
		protocol, ip, port = "tcp", a.IP.String(), a.Port
	case *net.UDPAddr:
		protocol, ip, port = "udp", a.IP.String(), a.Port
	default:
		panic("Unsupported net.Addr type: " + addr.String())
	}

	parsed := net.ParseIP(ip)
	family := 4
	if parsed != nil && parsed.To4() == nil {
		family = 6
	}

	return TransportAddress{
		protocol:  strings.ToLower(protocol),
		ip:        ip,
		port:      port,
		family:    family,
		linkLocal: parsed != nil && (parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast()),
	}
}

func (ta *TransportAddress) netAddr() (addr net.Addr) {
	hostport := fmt.Sprintf("%s:%d", ta.ip, ta.port)
	switch ta.protocol {
	case "tcp":
		addr, _ = net.ResolveTCPAddr("tcp", hostport)
	case "udp":
		addr, _ = net.ResolveUDPAddr("udp", hostport)
	}
	return
}

func (ta TransportAddress) String() string {
	return fmt.Sprintf("%s/%s:%d", ta.protocol, ta.ip, ta.port)
}
