package ice

import (
	"io"
	"math"
	"net"
	"time"
)

// ChannelConn adapts a Base's channel-delivered packet stream into a
// net.Conn for a single fixed remote address (the selected candidate pair).
type ChannelConn struct {
	conn net.PacketConn

	in     <-chan []byte // Channel for reads, fed by Base.readLoop
	raddr  net.Addr      // Remote address of the selected pair
	rtimer *time.Timer   // Timer enforcing the read deadline
}

// NewChannelConn returns a ChannelConn bound to base's underlying socket and
// raddr, reading data packets that base's read loop forwards on in.
func NewChannelConn(base *Base, in <-chan []byte, raddr net.Addr) *ChannelConn {
	return &ChannelConn{
		conn:   base.PacketConn,
		in:     in,
		raddr:  raddr,
		rtimer: time.NewTimer(math.MaxInt64),
	}
}

// Read returns the next buffer delivered on the channel. Returns io.EOF if
// the channel is closed.
func (c *ChannelConn) Read(b []byte) (int, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		if len(data) > len(b) {
			log.Warn("ice: read truncated due to short buffer")
		}
		return copy(b, data), nil

	case <-c.rtimer.C:
		return 0, errReadTimeout
	}
}

func (c *ChannelConn) Write(b []byte) (int, error) {
	return c.conn.WriteTo(b, c.raddr)
}

func (c *ChannelConn) Close() error {
	return nil
}

func (c *ChannelConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *ChannelConn) RemoteAddr() net.Addr {
	return c.raddr
}

func (c *ChannelConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *ChannelConn) SetReadDeadline(t time.Time) error {
	if !c.rtimer.Stop() {
		select {
		case <-c.rtimer.C:
		default:
		}
	}
	if !t.IsZero() {
		c.rtimer.Reset(time.Until(t))
	}
	return nil
}

func (c *ChannelConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
