package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagSTUNAddress string
	flagPrivacy     bool
	flagRTX         bool
	flagHelp        bool
	flagVersion     bool
)

func init() {
	flag.StringVarP(&flagSTUNAddress, "stun-address", "s", "", "STUN server address (host:port)")
	flag.BoolVarP(&flagPrivacy, "privacy", "p", false, "Suppress host candidates in outgoing SDP")
	flag.BoolVarP(&flagRTX, "video-rtx", "r", false, "Negotiate an RFC4588 retransmission SSRC")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Loopback media session demo

Usage: avsctl [OPTION]...

Allocates two media session coordinators in one process, exchanges SDP
offer/answer and ICE candidates directly between them (no signaling
server involved), waits for both sides to establish DTLS-SRTP, sends a
frame of audio from one side to the other, and prints the resulting
session stats.

Network:
  -s, --stun-address=URI STUN server address (default: none, host
                          candidates only)
  -p, --privacy          Suppress host candidates, advertise relay only
  -r, --video-rtx         Negotiate an RFC4588 retransmission SSRC
                          (applies to video only; this demo offers
                          audio only)

Miscellaneous:
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits`

func help() {
	b := color.New(color.FgCyan)
	b.Println("avsctl")
	fmt.Println(helpString)
}

func version() {
	fmt.Println("avsctl (development build)")
}
