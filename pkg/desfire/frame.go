package desfire

import (
	"fmt"
	"log/slog"

	"github.com/gregLibert/desfire/pkg/iso7816"
	"github.com/gregLibert/desfire/pkg/tlv"
	"github.com/gregLibert/desfire/pkg/transport"
)

// exchange follows one command from its first frame to its final status.
// It is kept in Session.pending while a chained response waits for Continue.
type exchange struct {
	op   string
	cmd  byte
	comm CommMode
	msg  messenger

	// iso marks ISO/IEC 7816-4 commands: two byte status words and 61xx
	// continuation instead of native 0xAF frames.
	iso bool
	// stopOnAF returns 0xAF to the caller instead of fetching the next frame.
	stopOnAF bool
	// partial lets the exchange pause when the rx buffer fills up.
	partial bool

	// tmi feeds response data to the TMI collector.
	tmi bool

	accept func(Status) bool
	check  func(total int) error

	sent         int
	seg          int
	total        int
	viaTransport bool
	next         []byte
}

func (s *Session) roundTrip(opt transport.Option, data []byte) ([]byte, bool, error) {
	s.log.Debug("frame",
		slog.String("opt", opt.String()),
		slog.String("tx", tlv.Upper(data)))

	resp, more, err := s.tr.Exchange(opt, data)
	if err != nil {
		return nil, false, fmt.Errorf("desfire: transport: %w", err)
	}

	s.log.Debug("frame",
		slog.String("rx", tlv.Upper(resp)),
		slog.Bool("more", more))
	return resp, more, nil
}

func (s *Session) frameCapacity() int {
	if s.wrapped {
		return wrappedFrameSize
	}
	return nativeFrameSize
}

func (s *Session) markerLen(x *exchange) int {
	if x.iso || s.wrapped {
		return 2
	}
	return 1
}

// isoSegment is the largest piece of a message sent in one ISO/IEC 14443-4
// block.
func (s *Session) isoSegment() int {
	overhead := isoNativeOverhead
	if s.wrapped {
		overhead = isoWrappedOverhead
	}
	if n := s.tr.FrameSize() - overhead; n > 0 {
		return n
	}
	return 1
}

// encodeFrame returns the bytes of one native frame, wrapped if needed.
func (s *Session) encodeFrame(cmd byte, data []byte) ([]byte, error) {
	if !s.wrapped {
		frame := make([]byte, 0, 1+len(data))
		frame = append(frame, cmd)
		return append(frame, data...), nil
	}
	raw, err := iso7816.WrapNative(cmd, data, iso7816.LengthAuto).Bytes()
	if err != nil {
		return nil, fmt.Errorf("desfire: wrap command %02X: %w", cmd, err)
	}
	return raw, nil
}

func (s *Session) exchangeFrame(cmd byte, data []byte) ([]byte, bool, error) {
	frame, err := s.encodeFrame(cmd, data)
	if err != nil {
		return nil, false, err
	}
	return s.roundTrip(transport.Default, frame)
}

func decodeStatus(marker []byte) Status {
	switch len(marker) {
	case 1:
		return Status(marker[0])
	case 2:
		sw := iso7816.StatusWord(uint16(marker[0])<<8 | uint16(marker[1]))
		if sw.IsNative() {
			return Status(sw.SW2())
		}
		return Status(sw)
	}
	return 0
}

// transmit sends cmd || header || payload as a chain of frames. Every frame
// carries at most chunkSize payload bytes and every frame but the last must
// be answered by a bare 0xAF. The answer to the last frame is returned
// unprocessed.
func (s *Session) transmit(x *exchange, header, payload []byte) ([]byte, bool, error) {
	limit := s.frameCapacity() - 1
	if len(header) > limit {
		return nil, false, invalidParameter(x.op, "header of %d bytes exceeds the frame", len(header))
	}

	cmd := x.cmd
	s.payloadLen = 0
	for {
		n := min(len(payload), s.chunkSize, limit-len(header))
		frame := make([]byte, 0, len(header)+n)
		frame = append(frame, header...)
		frame = append(frame, payload[:n]...)

		comm := x.comm
		if n < len(payload) {
			comm |= macDataIncomplete
		}
		s.log.Debug("chunk",
			slog.String("cmd", fmt.Sprintf("%02X", cmd)),
			slog.Int("data", n),
			slog.String("comm", comm.String()))

		resp, more, err := s.exchangeFrame(cmd, frame)
		if err != nil {
			return nil, false, err
		}
		s.payloadLen += n
		payload = payload[n:]
		if len(payload) == 0 {
			return resp, more, nil
		}

		ml := s.markerLen(x)
		if more || len(resp) < ml {
			return nil, false, protocolError(x.op, "malformed answer to intermediate frame")
		}
		st := decodeStatus(resp[len(resp)-ml:])
		if st == Status(statusAdditionalFrame) && len(resp) == ml {
			header = nil
			cmd = cmdAdditionalFrame
			continue
		}
		if kind, _ := Translate(st, s.piccLevel()); kind != KindSuccess && kind != KindSuccessChaining {
			// The caller translates the error status.
			return resp, false, nil
		}
		return nil, false, protocolError(x.op, "card answered %s with %d bytes left to send", st, len(payload))
	}
}

// sendMessage sends an encoded message through ISO/IEC 14443-4 chaining.
func (s *Session) sendMessage(wire []byte) ([]byte, bool, error) {
	seg := s.isoSegment()
	for len(wire) > seg {
		if _, _, err := s.roundTrip(transport.TxChaining, wire[:seg]); err != nil {
			return nil, false, err
		}
		wire = wire[seg:]
	}
	return s.roundTrip(transport.Default, wire)
}

// continuation returns the request fetching the next part of a response
// ending with st, or false when st terminates the exchange.
func (s *Session) continuation(x *exchange, st Status) ([]byte, bool, error) {
	if x.iso {
		sw := iso7816.StatusWord(st)
		if sw.SW1() != 0x61 {
			return nil, false, nil
		}
		ne := int(sw.SW2())
		if ne == 0 {
			ne = iso7816.MaxShortLe
		}
		ins, err := iso7816.NewInstruction(iso7816.INS_GET_RESPONSE)
		if err != nil {
			return nil, false, err
		}
		raw, err := iso7816.NewCommandAPDU(iso7816.Interindustry(), ins, 0, 0, nil, ne).Bytes()
		return raw, true, err
	}
	if st != Status(statusAdditionalFrame) || x.stopOnAF {
		return nil, false, nil
	}
	raw, err := s.encodeFrame(cmdAdditionalFrame, nil)
	return raw, true, err
}

// receive accumulates the response frames of x into the rx buffer, starting
// with resp. It returns paused when the next frame would overflow the
// buffer; x then records how to resume.
func (s *Session) receive(x *exchange, resp []byte, more bool) (st Status, paused bool, err error) {
	ml := s.markerLen(x)
	for {
		s.rx.append(resp)
		x.seg += len(resp)
		for more {
			if x.partial && s.rx.len()+s.tr.FrameSize() > s.rxCap {
				x.viaTransport = true
				return 0, true, nil
			}
			resp, more, err = s.roundTrip(transport.RxChaining, nil)
			if err != nil {
				return 0, false, err
			}
			s.rx.append(resp)
			x.seg += len(resp)
		}

		if x.seg < ml {
			return 0, false, protocolError(x.op, "response of %d bytes carries no status", x.seg)
		}
		st = decodeStatus(s.rx.trimTrailingMarker(ml))
		data := x.seg - ml
		x.seg = 0

		next, ok, err := s.continuation(x, st)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return st, false, nil
		}
		if data == 0 && !x.iso {
			return 0, false, protocolError(x.op, "additional frame without data")
		}
		if x.partial && s.rx.len()+maxResponseFrame > s.rxCap {
			x.viaTransport = false
			x.next = next
			return st, true, nil
		}
		resp, more, err = s.roundTrip(transport.Default, next)
		if err != nil {
			return 0, false, err
		}
	}
}

// finish completes or pauses x once the first answer is in.
func (s *Session) finish(x *exchange, resp []byte, more bool) ([]byte, bool, error) {
	st, paused, err := s.receive(x, resp, more)
	if err != nil {
		s.rx.reset()
		return nil, false, s.fail(err)
	}

	if paused {
		keep := 0
		if x.viaTransport {
			keep = s.markerLen(x)
		}
		out, err := x.msg.unprotect(s.rx.take(keep), false, 0)
		if err != nil {
			s.rx.reset()
			return nil, false, s.fail(withOp(x.op, err))
		}
		if err := s.collectTMI(x, out); err != nil {
			return nil, false, s.fail(err)
		}
		x.total += len(out)
		s.pending = x
		return out, true, nil
	}

	payload := s.rx.take(0)
	accept := x.accept
	if accept == nil {
		accept = s.success
	}
	if !accept(st) {
		if kind, _ := Translate(st, s.piccLevel()); kind == KindSuccess || kind == KindSuccessChaining {
			return nil, false, s.fail(protocolError(x.op, "unexpected status %s", st))
		}
		return nil, false, s.fail(s.statusError(x.op, st))
	}
	if st == Status(statusAdditionalFrame) && x.stopOnAF {
		return payload, true, nil
	}
	if s.payloadLen != x.sent {
		return nil, false, s.fail(protocolError(x.op, "card completed after %d of %d payload bytes", s.payloadLen, x.sent))
	}

	out, err := x.msg.unprotect(payload, true, st)
	if err != nil {
		return nil, false, s.fail(withOp(x.op, err))
	}
	if err := s.collectTMI(x, out); err != nil {
		return nil, false, s.fail(err)
	}
	x.total += len(out)
	if x.check != nil {
		if err := x.check(x.total); err != nil {
			return nil, false, s.fail(err)
		}
	}
	return out, false, nil
}

func (s *Session) success(st Status) bool {
	kind, _ := Translate(st, s.piccLevel())
	return kind == KindSuccess
}

// Continue fetches the next part of a chained response returned with
// more == true by ReadData, ReadRecords, IsoReadBinary or IsoReadRecords.
func (s *Session) Continue() ([]byte, bool, error) {
	x := s.pending
	if x == nil {
		return nil, false, invalidParameter("Continue", "no chained response pending")
	}
	s.pending = nil

	var (
		resp []byte
		more bool
		err  error
	)
	if x.viaTransport {
		resp, more, err = s.roundTrip(transport.RxChaining, nil)
	} else {
		resp, more, err = s.roundTrip(transport.Default, x.next)
	}
	if err != nil {
		s.rx.reset()
		return nil, false, s.fail(err)
	}
	return s.finish(x, resp, more)
}

// begin prepares the session for a new command. A chained response left
// pending is dropped, and with it the secure session whose IV it holds.
func (s *Session) begin(cmd byte) {
	if s.pending != nil {
		s.log.Debug("chained response abandoned", slog.String("op", s.pending.op))
		s.pending = nil
		if s.authMode.secure() {
			s.reset()
		}
	}
	s.rx.reset()
	s.payloadLen = 0
	s.lastCmd = cmd
}

func (s *Session) collectTMI(x *exchange, data []byte) error {
	if !x.tmi || s.tmi == nil || len(data) == 0 {
		return nil
	}
	if err := s.tmi.Collect(nil, data); err != nil {
		return fmt.Errorf("desfire: %s: collect tmi: %w", x.op, err)
	}
	return nil
}
