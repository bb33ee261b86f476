package desfire

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gregLibert/desfire/pkg/keystore"
	"github.com/gregLibert/desfire/pkg/swcrypto"
	"github.com/gregLibert/desfire/pkg/transport"
)

// AuthMode is the authentication that opened the current secure session.
type AuthMode int

const (
	AuthNone AuthMode = iota
	// AuthD40 is the legacy DESFire authentication (0x0A).
	AuthD40
	// AuthISO is the EV1 ISO authentication with 2K3DES or 3K3DES keys (0x1A).
	AuthISO
	// AuthAES is the EV1 AES authentication (0xAA).
	AuthAES
	// AuthEV2 is the EV2 authentication (0x71 / 0x77).
	AuthEV2
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthD40:
		return "D40"
	case AuthISO:
		return "ISO"
	case AuthAES:
		return "AES"
	case AuthEV2:
		return "EV2"
	default:
		return fmt.Sprintf("AuthMode(%d)", int(m))
	}
}

// secure reports whether responses are protected with a CMAC chain.
func (m AuthMode) secure() bool {
	return m == AuthISO || m == AuthAES || m == AuthEV2
}

// CommMode is the communication mode requested for a command.
type CommMode byte

const (
	CommPlain      CommMode = 0x00
	CommMACed      CommMode = 0x10
	CommEnciphered CommMode = 0x30

	// macDataIncomplete marks the chunks of a write that are followed by more data.
	macDataIncomplete CommMode = 0x01
)

func (c CommMode) String() string {
	base := "Plain"
	switch c &^ macDataIncomplete {
	case CommMACed:
		base = "MACed"
	case CommEnciphered:
		base = "Enciphered"
	}
	if c&macDataIncomplete != 0 {
		base += "|Incomplete"
	}
	return base
}

func (c CommMode) valid() bool {
	return c == CommPlain || c == CommMACed || c == CommEnciphered
}

// Chaining selects how data commands travel when they exceed one frame.
type Chaining int

const (
	// NativeChaining splits messages into 0xAF frames.
	NativeChaining Chaining = iota
	// ISOChaining uses the ISO instruction variants and ISO/IEC 14443-4 chaining.
	ISOChaining
)

const (
	invalidKeyNo = 0xFF
	invalidCmd   = 0xFF
)

// Session holds the state of one card session. It is created by New and
// mutated by every command.
type Session struct {
	tr     transport.Transport
	crypto Crypto
	keys   KeyStore
	tmi    TMI
	pc     ProximityCheck
	log    *slog.Logger

	authMode   AuthMode
	keyNo      byte
	sessEncKey keystore.Key
	sessMACKey keystore.Key
	iv         []byte
	cmdCtr     uint16
	ti         [4]byte

	aid       [3]byte
	wrapped   bool
	shortAPDU bool
	addInfo   uint16
	chunkSize int
	rxCap     int

	lastCmd    byte
	payloadLen int
	pending    *exchange
	rx         rxBuffer
}

// New creates a Session on top of tr. Without WithCrypto the software
// provider of package swcrypto is used.
func New(tr transport.Transport, opts ...Option) (*Session, error) {
	if tr == nil {
		return nil, errors.New("desfire: nil transport")
	}
	s := &Session{
		tr:        tr,
		log:       slog.Default(),
		chunkSize: DefaultChunkSize,
		rxCap:     DefaultRxBufferSize,
		keyNo:     invalidKeyNo,
		lastCmd:   invalidCmd,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.crypto == nil {
		s.crypto = swcrypto.New()
	}
	return s, nil
}

// AuthMode returns the active authentication.
func (s *Session) AuthMode() AuthMode { return s.authMode }

// KeyNo returns the key number of the active authentication, 0xFF when none.
func (s *Session) KeyNo() byte { return s.keyNo }

// CommandCounter returns the EV2 command counter.
func (s *Session) CommandCounter() uint16 { return s.cmdCtr }

// TransactionID returns the EV2 transaction identifier.
func (s *Session) TransactionID() [4]byte { return s.ti }

// AID returns the selected application, or the identifier derived from the
// last ISO selection.
func (s *Session) AID() [3]byte { return s.aid }

// Wrapped reports whether commands travel wrapped in ISO/IEC 7816-4 APDUs.
func (s *Session) Wrapped() bool { return s.wrapped }

// ResetAuthentication drops the secure session. The card is not contacted.
func (s *Session) ResetAuthentication() {
	s.reset()
}

// reset is the only place clearing authentication state.
func (s *Session) reset() {
	clear(s.sessEncKey.Value)
	clear(s.sessMACKey.Value)
	clear(s.iv)
	s.sessEncKey = keystore.Key{}
	s.sessMACKey = keystore.Key{}
	s.iv = nil
	s.authMode = AuthNone
	s.keyNo = invalidKeyNo
	s.cmdCtr = 0
	s.ti = [4]byte{}
	s.lastCmd = invalidCmd
	s.payloadLen = 0
	s.pending = nil
	s.rx.reset()

	if s.tmi != nil {
		if err := s.tmi.Reset(); err != nil {
			s.log.Warn("tmi reset failed", slog.Any("error", err))
		}
	}
	if s.pc != nil {
		s.pc.SetSessionKeys(AuthNone, nil, nil)
	}
}

// fail resets a secure session after an error so that no command runs with
// a desynchronized IV or counter.
func (s *Session) fail(err error) error {
	if err == nil {
		return nil
	}
	if s.authMode.secure() {
		s.log.Warn("authentication reset",
			slog.String("auth", s.authMode.String()),
			slog.String("kind", KindOf(err).String()),
			slog.Any("error", err))
		s.reset()
	}
	return err
}

// wireComm derives the mode a command really travels in.
func (s *Session) wireComm(requested CommMode) CommMode {
	if s.authMode == AuthNone {
		return CommPlain
	}
	return requested &^ macDataIncomplete
}

// mgmtComm is the mode of card and application management commands: MACed
// under EV2, plain (CMAC chained) otherwise.
func (s *Session) mgmtComm() CommMode {
	if s.authMode == AuthEV2 {
		return CommMACed
	}
	return CommPlain
}

func (s *Session) piccLevel() bool {
	return s.aid == [3]byte{}
}

// statusError translates a card status into an error. Generic failures keep
// the status for GetConfig(ConfigAdditionalInfo).
func (s *Session) statusError(op string, st Status) error {
	kind, target := Translate(st, s.piccLevel())
	if kind == KindGenericFailure {
		s.addInfo = uint16(st)
	}
	return &Error{Op: op, Kind: kind, Target: target, Status: st, HasStatus: true}
}
