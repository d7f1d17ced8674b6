package rtpsession

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
)

const reportInterval = 5 * time.Second

// ReceptionStats tracks the fields an RTCP receiver report needs for one
// remote SSRC, updated as RTP packets and sender reports arrive; receiver
// reports are not folded in.
type ReceptionStats struct {
	mu sync.Mutex

	lastSenderSSRC  uint32
	lastSenderNTP   uint64
	lastSenderRTP   uint32
	packetsReceived uint32
	lastSeq         uint16
	jitter          uint32
}

func (r *ReceptionStats) recordSenderReport(sr *rtcp.SenderReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSenderSSRC = sr.SSRC
	r.lastSenderNTP = sr.NTPTime
	r.lastSenderRTP = sr.RTPTime
}

func (r *ReceptionStats) recordReceiverReport(rr *rtcp.ReceiverReport) {
	// Receiver reports describe the remote side's view of traffic we sent;
	// nothing to fold into our own reception stats.
	_ = rr
}

func (r *ReceptionStats) observe(seq uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packetsReceived++
	r.lastSeq = seq
}

func (r *ReceptionStats) snapshot() (packetsReceived uint32, lastSeq uint16, jitter uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packetsReceived, r.lastSeq, r.jitter
}

// StartReceiverReports sends a receiver report for every AddStream'd stream
// every reportInterval, until ctx is cancelled. Intended to run as a single
// goroutine per Session, since RTCP reports for all streams share one
// SRTCP write stream.
func (s *Session) StartReceiverReports(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendReceiverReports(ctx)
		}
	}
}

func (s *Session) sendReceiverReports(ctx context.Context) {
	s.mu.RLock()
	streams := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.RUnlock()

	for _, st := range streams {
		received, lastSeq, jitter := st.rtcpStats.snapshot()
		rr := &rtcp.ReceiverReport{
			SSRC: st.cfg.LocalSSRC,
			Reports: []rtcp.ReceptionReport{{
				SSRC:               st.cfg.RemoteSSRC,
				LastSequenceNumber: uint32(lastSeq),
				Jitter:             jitter,
				TotalLost:          0,
			}},
		}
		_ = received // surfaced via Stream.Stats(), not needed in the RR itself

		buf, err := rr.Marshal()
		if err != nil {
			log.Warn("rtpsession: failed to marshal receiver report: %s", err)
			continue
		}
		if _, err := s.writeStreamRTCP.Write(buf); err != nil {
			log.Warn("rtpsession: failed to send receiver report for ssrc=%d: %s", st.cfg.LocalSSRC, err)
		}
	}
}

// SendSenderReport emits an RTCP sender report for stream, describing the
// NTP/RTP timestamp correspondence and packet/octet counts at the moment of
// the call.
func (s *Stream) SendSenderReport(ctx context.Context, ntpTime uint64, packetCount, octetCount uint32) error {
	sr := &rtcp.SenderReport{
		SSRC:        s.cfg.LocalSSRC,
		NTPTime:     ntpTime,
		RTPTime:     s.timestamp,
		PacketCount: packetCount,
		OctetCount:  octetCount,
	}
	buf, err := sr.Marshal()
	if err != nil {
		return err
	}
	_, err = s.session.writeStreamRTCP.Write(buf)
	return err
}
