package iso7816

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gregLibert/desfire/pkg/transport"
	"github.com/gregLibert/desfire/pkg/tlv"
)

// CLIENT & PROTOCOL LOGIC:
// The Client carries DESFire frames over a PC/SC connection. It implements
// transport.Transport so the DESFire layer can drive it like any contactless
// link, and handles the ISO 7816-3 behaviors PC/SC exposes to applications:
//
// 1. "61 XX" (Response Available): the client sends GET RESPONSE and appends
//    the returned bytes to the data already received.
// 2. "6C XX" (Wrong Length): the client re-sends the command with Le = XX.
//
// The reader performs ISO/IEC 14443-4 block chaining itself, so outgoing
// segments (First, Cont, TxChaining) are buffered and transmitted as one APDU
// when the final segment arrives, and responses are never left pending.

// DefaultFrameSize is the frame size reported to the DESFire layer. PC/SC
// readers reassemble chained blocks, so the short APDU limit is the real bound.
const DefaultFrameSize = 256

const maxRetries = 16

// ErrNoPendingResponse is returned for RxChaining, which never applies to PC/SC.
var ErrNoPendingResponse = errors.New("iso7816: no chained response pending")

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client drives a Transmitter.
type Client struct {
	Card      Transmitter
	frameSize int
	logger    *slog.Logger
	pending   []byte
	trace     Trace
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithFrameSize overrides DefaultFrameSize.
func WithFrameSize(n int) ClientOption {
	return func(c *Client) {
		c.frameSize = n
	}
}

// WithLogger logs every raw transaction at debug level.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter, opts ...ClientOption) *Client {
	c := &Client{
		Card:      card,
		frameSize: DefaultFrameSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FrameSize implements transport.Transport.
func (c *Client) FrameSize() int {
	return c.frameSize
}

// Exchange implements transport.Transport.
func (c *Client) Exchange(opt transport.Option, data []byte) ([]byte, bool, error) {
	switch opt {
	case transport.First:
		c.pending = append(c.pending[:0], data...)
		return nil, false, nil
	case transport.Cont, transport.TxChaining:
		c.pending = append(c.pending, data...)
		return nil, false, nil
	case transport.Default, transport.Last:
		raw := append(c.pending, data...)
		c.pending = nil
		resp, err := c.transmit(raw)
		return resp, false, err
	case transport.RxChaining:
		return nil, false, ErrNoPendingResponse
	}
	return nil, false, fmt.Errorf("iso7816: unsupported exchange option %v", opt)
}

// Send encodes and transmits a command, returning the parsed response.
func (c *Client) Send(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}
	resp, err := c.transmit(raw)
	if err != nil {
		return nil, err
	}
	return ParseResponseAPDU(resp)
}

// LastTrace returns the transactions of the most recent exchange.
func (c *Client) LastTrace() Trace {
	return c.trace
}

func (c *Client) transmit(raw []byte) ([]byte, error) {
	c.trace = nil

	var data []byte
	cmd := raw
	for i := 0; i < maxRetries; i++ {
		resp, err := c.roundTrip(cmd)
		if err != nil {
			return nil, err
		}

		sw := resp.Status
		switch sw.SW1() {
		case 0x61:
			// ISO 7816-4: GET RESPONSE uses the logical channel of the original command.
			data = append(data, resp.Data...)
			cls, err := NewClass(raw[0])
			if err != nil {
				return nil, err
			}
			cls.IsChained = false
			ne := int(sw.SW2())
			if ne == 0 {
				ne = MaxShortLe
			}
			if cmd, err = NewCommandAPDU(cls, mustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, ne).Bytes(); err != nil {
				return nil, err
			}

		case 0x6C:
			if len(cmd) <= 4 {
				return nil, fmt.Errorf("card asked for Le %d on a command without Le", sw.SW2())
			}
			fixed := append([]byte(nil), cmd...)
			fixed[len(fixed)-1] = sw.SW2()
			cmd = fixed

		default:
			data = append(data, resp.Data...)
			return append(data, sw.SW1(), sw.SW2()), nil
		}
	}
	return nil, fmt.Errorf("iso7816: card still chaining after %d transactions", maxRetries)
}

func (c *Client) roundTrip(cmd []byte) (*ResponseAPDU, error) {
	c.logger.Debug("apdu", slog.String("c-apdu", tlv.Upper(cmd)))

	rawResp, err := c.Card.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("apdu", slog.String("r-apdu", tlv.Upper(rawResp)), slog.String("sw", resp.Status.Verbose()))
	c.trace = append(c.trace, Transaction{Command: cmd, Response: resp})
	return resp, nil
}
