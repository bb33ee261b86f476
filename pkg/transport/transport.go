// Package transport describes the link that carries DESFire frames to the card.
//
// The command layer never talks to a reader directly. It hands byte strings to
// a Transport together with an Option telling the link how the bytes relate to
// the previous call:
//
//	Default     send data as one complete frame and return the card's answer
//	First       start a new outgoing message, nothing is sent yet
//	Cont        append to the outgoing message, nothing is sent yet
//	Last        append, send the whole message and return the answer
//	TxChaining  send data as a non-final ISO/IEC 14443-4 chained block
//	RxChaining  fetch the next block of a response the card is still chaining
//
// A response returned with more == true is incomplete at the ISO/IEC 14443-4
// level: the caller must issue RxChaining exchanges until more turns false.
package transport

import "fmt"

// Option qualifies one call to Transport.Exchange.
type Option int

const (
	Default Option = iota
	First
	Cont
	Last
	RxChaining
	TxChaining
)

func (o Option) String() string {
	switch o {
	case Default:
		return "Default"
	case First:
		return "First"
	case Cont:
		return "Cont"
	case Last:
		return "Last"
	case RxChaining:
		return "RxChaining"
	case TxChaining:
		return "TxChaining"
	default:
		return fmt.Sprintf("Option(%d)", int(o))
	}
}

// Transport is the card link used by the DESFire command layer.
type Transport interface {
	// Exchange performs one step of a frame exchange. Steps that only buffer
	// data (First, Cont, TxChaining) return a nil response.
	Exchange(opt Option, data []byte) (resp []byte, more bool, err error)

	// FrameSize is the maximum ISO/IEC 14443-4 frame size (FSC) agreed with the card.
	FrameSize() int
}

// fscTable maps the FSCI nibble of the ATS to a frame size in bytes.
var fscTable = [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256}

// FrameSizeFromFSCI converts the FSCI value announced in the ATS into a frame
// size. Values above 8 are reserved and read as 256.
func FrameSizeFromFSCI(fsci byte) int {
	if int(fsci) >= len(fscTable) {
		return fscTable[len(fscTable)-1]
	}
	return fscTable[fsci]
}
