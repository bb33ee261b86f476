package desfire

import (
	"fmt"
)

// request describes one native command for the secure messaging layer.
type request struct {
	op       string
	cmd      byte
	header   []byte
	data     []byte
	comm     CommMode
	chaining Chaining

	// write marks commands whose data goes to the card. Only writes carry a
	// MAC or cryptogram under D40 and EV1.
	write bool
	// partial lets the response come back in several parts (see Continue).
	partial bool
	// plainResponse skips response verification.
	plainResponse bool
	// tmi feeds command and response data to the TMI collector.
	tmi bool

	check func(total int) error
}

// do runs a command and returns its complete response.
func (s *Session) do(req request) ([]byte, error) {
	out, _, err := s.start(req)
	return out, err
}

// start runs a command up to its final status or, for partial requests,
// until the rx buffer fills up.
func (s *Session) start(req request) ([]byte, bool, error) {
	s.begin(req.cmd)
	comm := s.wireComm(req.comm)
	x := &exchange{
		op:      req.op,
		cmd:     req.cmd,
		comm:    comm,
		partial: req.partial,
		tmi:     req.tmi,
		check:   req.check,
		msg:     s.newMessenger(comm, req.write, req.plainResponse),
	}

	if req.tmi && s.tmi != nil {
		hdr := append([]byte{req.cmd}, req.header...)
		if err := s.tmi.Collect(hdr, req.data); err != nil {
			return nil, false, fmt.Errorf("desfire: %s: collect tmi: %w", req.op, err)
		}
	}

	payload, err := x.msg.protect(req.cmd, req.header, req.data)
	if err != nil {
		return nil, false, s.fail(withOp(req.op, err))
	}

	var (
		resp []byte
		more bool
	)
	if req.chaining == ISOChaining {
		msg := make([]byte, 0, len(req.header)+len(payload))
		msg = append(msg, req.header...)
		msg = append(msg, payload...)
		wire, err := s.encodeFrame(req.cmd, msg)
		if err != nil {
			return nil, false, s.fail(err)
		}
		resp, more, err = s.sendMessage(wire)
		if err != nil {
			return nil, false, s.fail(err)
		}
		s.payloadLen = len(payload)
	} else {
		resp, more, err = s.transmit(x, req.header, payload)
		if err != nil {
			return nil, false, s.fail(err)
		}
	}
	x.sent = len(payload)
	return s.finish(x, resp, more)
}

func validFileNo(op string, fileNo byte) error {
	if fileNo > maxFileNo {
		return invalidParameter(op, "file number 0x%02X above 0x%02X", fileNo, maxFileNo)
	}
	return nil
}

func validComm(op string, comm CommMode) error {
	if !comm.valid() {
		return invalidParameter(op, "communication mode 0x%02X", byte(comm))
	}
	return nil
}

func validChaining(op string, ch Chaining) error {
	if ch != NativeChaining && ch != ISOChaining {
		return invalidParameter(op, "chaining %d", int(ch))
	}
	return nil
}

// exactLength is a response check for commands answering a fixed length.
func exactLength(op string, n int) func(int) error {
	return func(total int) error {
		if total != n {
			return protocolError(op, "response of %d bytes, expected %d", total, n)
		}
		return nil
	}
}

// multipleOf is a response check for lists of fixed size entries.
func multipleOf(op string, unit int) func(int) error {
	return func(total int) error {
		if total%unit != 0 {
			return protocolError(op, "response of %d bytes is not a multiple of %d", total, unit)
		}
		return nil
	}
}
