package desfire

import (
	"fmt"
	"log/slog"
)

// Option configures a Session at construction time.
type Option func(*Session) error

// WithCrypto sets the crypto collaborator.
func WithCrypto(c Crypto) Option {
	return func(s *Session) error {
		if c == nil {
			return fmt.Errorf("desfire: nil crypto provider")
		}
		s.crypto = c
		return nil
	}
}

// WithKeyStore sets the store the authentication commands take keys from.
func WithKeyStore(k KeyStore) Option {
	return func(s *Session) error {
		s.keys = k
		return nil
	}
}

// WithTMI attaches a transaction MAC input collector.
func WithTMI(t TMI) Option {
	return func(s *Session) error {
		s.tmi = t
		return nil
	}
}

// WithProximityCheck attaches a proximity check component that is handed the
// session keys after each authentication.
func WithProximityCheck(pc ProximityCheck) Option {
	return func(s *Session) error {
		s.pc = pc
		return nil
	}
}

// WithLogger sets the logger. Frames are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithWrappedMode starts the session with ISO/IEC 7816-4 wrapped framing.
func WithWrappedMode(wrapped bool) Option {
	return func(s *Session) error {
		s.wrapped = wrapped
		return nil
	}
}

// WithWriteChunkSize sets the data bytes carried per frame by chained writes.
func WithWriteChunkSize(n int) Option {
	return func(s *Session) error {
		return s.setChunkSize(n)
	}
}

// WithRxBufferSize bounds the bytes accumulated before a chained read is
// handed back to the caller.
func WithRxBufferSize(n int) Option {
	return func(s *Session) error {
		return s.setRxCap(n)
	}
}

// ConfigOption names a runtime setting of GetConfig and SetConfig.
type ConfigOption int

const (
	// ConfigAdditionalInfo is the status kept by the last generic failure.
	ConfigAdditionalInfo ConfigOption = iota
	// ConfigWrappedMode is 1 when commands are wrapped in ISO/IEC 7816-4 APDUs.
	ConfigWrappedMode
	// ConfigShortLengthAPDU forces short Lc/Le on the next ISO command.
	ConfigShortLengthAPDU
	ConfigWriteChunkSize
	ConfigRxBufferSize
)

func (o ConfigOption) String() string {
	switch o {
	case ConfigAdditionalInfo:
		return "AdditionalInfo"
	case ConfigWrappedMode:
		return "WrappedMode"
	case ConfigShortLengthAPDU:
		return "ShortLengthAPDU"
	case ConfigWriteChunkSize:
		return "WriteChunkSize"
	case ConfigRxBufferSize:
		return "RxBufferSize"
	default:
		return fmt.Sprintf("ConfigOption(%d)", int(o))
	}
}

// GetConfig reads a runtime setting. Boolean settings read as 0 or 1.
func (s *Session) GetConfig(opt ConfigOption) (int, error) {
	switch opt {
	case ConfigAdditionalInfo:
		return int(s.addInfo), nil
	case ConfigWrappedMode:
		return boolInt(s.wrapped), nil
	case ConfigShortLengthAPDU:
		return boolInt(s.shortAPDU), nil
	case ConfigWriteChunkSize:
		return s.chunkSize, nil
	case ConfigRxBufferSize:
		return s.rxCap, nil
	}
	return 0, invalidParameter("GetConfig", "unknown option %v", opt)
}

// SetConfig changes a runtime setting.
func (s *Session) SetConfig(opt ConfigOption, value int) error {
	switch opt {
	case ConfigAdditionalInfo:
		if value < 0 || value > 0xFFFF {
			return invalidParameter("SetConfig", "additional info %d out of range", value)
		}
		s.addInfo = uint16(value)
	case ConfigWrappedMode:
		s.wrapped = value != 0
	case ConfigShortLengthAPDU:
		s.shortAPDU = value != 0
	case ConfigWriteChunkSize:
		return s.setChunkSize(value)
	case ConfigRxBufferSize:
		return s.setRxCap(value)
	default:
		return invalidParameter("SetConfig", "unknown option %v", opt)
	}
	return nil
}

func (s *Session) setChunkSize(n int) error {
	if n < 16 || n > nativeFrameSize-1 {
		return invalidParameter("SetConfig", "write chunk size %d outside [16, %d]", n, nativeFrameSize-1)
	}
	s.chunkSize = n
	return nil
}

func (s *Session) setRxCap(n int) error {
	if n < 2*maxResponseFrame {
		return invalidParameter("SetConfig", "rx buffer size %d below %d", n, 2*maxResponseFrame)
	}
	s.rxCap = n
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
