package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/maniacs-satm/avs"
)

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := avs.Config{
		AudioCodecs: []avs.Codec{
			{Name: "opus", ClockRate: 48000, Channels: 2},
		},
		LocalAddress: "127.0.0.1",
		NATMode:      avs.NATNone,
		CryptoMask:   avs.CryptoDTLSSRTP,
		PrivacyMode:  flagPrivacy,
	}
	cfg.EnableVideoRTX = flagRTX
	if flagSTUNAddress != "" {
		cfg.STUNServers = []string{flagSTUNAddress}
		cfg.NATMode = avs.NATTrickleICEDualStack
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	established := make(chan string, 2)
	var caller, callee *avs.Session

	caller, err := avs.Allocate(ctx, cfg, nil,
		func(desc string) {
			if callee != nil {
				_ = callee.AddRemoteCandidate(desc)
			}
		},
		func() { established <- "caller" },
		func(code avs.CloseCode, err error) {
			if err != nil {
				log.Printf("caller closed: %s: %s", code, err)
			}
		})
	if err != nil {
		log.Fatal(err)
	}
	defer caller.Close()

	callee, err = avs.Allocate(ctx, cfg, nil,
		func(desc string) {
			if caller != nil {
				_ = caller.AddRemoteCandidate(desc)
			}
		},
		func() { established <- "callee" },
		func(code avs.CloseCode, err error) {
			if err != nil {
				log.Printf("callee closed: %s: %s", code, err)
			}
		})
	if err != nil {
		log.Fatal(err)
	}
	defer callee.Close()

	offer, err := caller.GenerateOffer()
	if err != nil {
		log.Fatal(err)
	}

	answer, err := callee.OfferAnswer(offer)
	if err != nil {
		log.Fatal(err)
	}

	if err := caller.HandleAnswer(answer); err != nil {
		log.Fatal(err)
	}

	if err := caller.StartICE(); err != nil {
		log.Fatal(err)
	}
	if err := callee.StartICE(); err != nil {
		log.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		select {
		case who := <-established:
			log.Printf("%s established", who)
		case <-ctx.Done():
			log.Fatal("timed out waiting for session establishment")
		}
	}

	if err := caller.StartMedia(); err != nil {
		log.Fatal(err)
	}
	if err := callee.StartMedia(); err != nil {
		log.Fatal(err)
	}

	if err := caller.SendAudio(ctx, []byte("avsctl loopback frame"), false, 960); err != nil {
		log.Fatal(err)
	}

	select {
	case pkt := <-callee.AudioPackets():
		fmt.Printf("received %d bytes from caller\n", len(pkt.Payload))
	case <-ctx.Done():
		log.Fatal("timed out waiting for audio packet")
	}

	fmt.Printf("caller stats: %+v\n", caller.Stats())
	fmt.Printf("callee stats: %+v\n", callee.Stats())
}
