// Package config loads the YAML configuration of the desfire command.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/desfire/pkg/desfire"
	"github.com/gregLibert/desfire/pkg/keystore"
)

type Config struct {
	Reader      ReaderConfig      `yaml:"reader"`
	Session     SessionConfig     `yaml:"session"`
	Application ApplicationConfig `yaml:"application"`
	Auth        *AuthConfig       `yaml:"auth,omitempty"`
	Read        *ReadConfig       `yaml:"read,omitempty"`
}

type ReaderConfig struct {
	Index *int `yaml:"index"`
	// FSCI is the frame size index of the card ATS. The PC/SC default
	// frame size applies when unset.
	FSCI *byte `yaml:"fsci,omitempty"`
}

type SessionConfig struct {
	Wrapped        bool `yaml:"wrapped"`
	RxBufferSize   int  `yaml:"rx_buffer_size,omitempty"`
	WriteChunkSize int  `yaml:"write_chunk_size,omitempty"`
}

type ApplicationConfig struct {
	// AID is 6 hex digits, most significant byte first as printed on
	// application listings.
	AID string `yaml:"aid,omitempty"`
	// DFName selects the application through ISO/IEC 7816-4 instead,
	// switching the session to wrapped framing.
	DFName string `yaml:"df_name,omitempty"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"`
	KeyNo      *byte  `yaml:"key_no"`
	KeyType    string `yaml:"key_type"`
	KeyVersion uint16 `yaml:"key_version,omitempty"`
	// KeyFile is a keystore YAML file. The key is prompted for when empty.
	KeyFile string `yaml:"key_file,omitempty"`
}

type ReadConfig struct {
	FileNo *byte  `yaml:"file_no"`
	Comm   string `yaml:"comm,omitempty"`
	Offset uint32 `yaml:"offset,omitempty"`
	Length uint32 `yaml:"length,omitempty"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML content without validating it. Unknown fields are
// rejected.
func Parse(content []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Reader.Index == nil {
		return fmt.Errorf("config.reader.index is required")
	}
	if *c.Reader.Index < 0 {
		return fmt.Errorf("config.reader.index must be >= 0")
	}

	if c.Session.RxBufferSize < 0 || c.Session.WriteChunkSize < 0 {
		return fmt.Errorf("config.session sizes must be >= 0")
	}

	if c.Reader.FSCI != nil && *c.Reader.FSCI > 8 {
		return fmt.Errorf("config.reader.fsci must be <= 8")
	}

	hasAID := strings.TrimSpace(c.Application.AID) != ""
	hasName := strings.TrimSpace(c.Application.DFName) != ""
	switch {
	case hasAID == hasName:
		return fmt.Errorf("config.application needs exactly one of aid and df_name")
	case hasAID:
		if _, err := c.AID(); err != nil {
			return err
		}
	default:
		if _, err := c.DFName(); err != nil {
			return err
		}
	}

	if c.Auth != nil {
		if _, err := c.Auth.AuthMode(); err != nil {
			return err
		}
		if c.Auth.KeyNo == nil {
			return fmt.Errorf("config.auth.key_no is required")
		}
		if *c.Auth.KeyNo > 0x0D {
			return fmt.Errorf("config.auth.key_no must be <= 13")
		}
		if c.Auth.KeyFile == "" {
			if _, err := keystore.ParseKeyType(c.Auth.KeyType); err != nil {
				return fmt.Errorf("config.auth.key_type: %w", err)
			}
		} else if err := validateReadableFile(c.Auth.KeyFile, "config.auth.key_file"); err != nil {
			return err
		}
	}

	if c.Read != nil {
		if c.Read.FileNo == nil {
			return fmt.Errorf("config.read.file_no is required")
		}
		if *c.Read.FileNo > 0x1F {
			return fmt.Errorf("config.read.file_no must be <= 31")
		}
		if _, err := c.Read.CommMode(); err != nil {
			return err
		}
	}
	return nil
}

// AID returns the application identifier in wire order, least significant
// byte first.
func (c *Config) AID() ([3]byte, error) {
	var aid [3]byte
	raw, err := hex.DecodeString(strings.TrimSpace(c.Application.AID))
	if err != nil || len(raw) != 3 {
		return aid, fmt.Errorf("config.application.aid must be 6 hex digits, got %q", c.Application.AID)
	}
	aid[0], aid[1], aid[2] = raw[2], raw[1], raw[0]
	return aid, nil
}

// DFName returns the ISO/IEC 7816-4 DF name of the application.
func (c *Config) DFName() ([]byte, error) {
	name, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(c.Application.DFName), " ", ""))
	if err != nil || len(name) == 0 || len(name) > 16 {
		return nil, fmt.Errorf("config.application.df_name must be 1 to 16 hex bytes, got %q", c.Application.DFName)
	}
	return name, nil
}

// SessionOptions maps the session section onto desfire options.
func (c *Config) SessionOptions() []desfire.Option {
	opts := []desfire.Option{desfire.WithWrappedMode(c.Session.Wrapped)}
	if c.Session.RxBufferSize > 0 {
		opts = append(opts, desfire.WithRxBufferSize(c.Session.RxBufferSize))
	}
	if c.Session.WriteChunkSize > 0 {
		opts = append(opts, desfire.WithWriteChunkSize(c.Session.WriteChunkSize))
	}
	return opts
}

func (a *AuthConfig) AuthMode() (desfire.AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(a.Mode)) {
	case "d40":
		return desfire.AuthD40, nil
	case "iso":
		return desfire.AuthISO, nil
	case "aes":
		return desfire.AuthAES, nil
	case "ev2":
		return desfire.AuthEV2, nil
	}
	return desfire.AuthNone, fmt.Errorf("config.auth.mode must be one of d40, iso, aes, ev2, got %q", a.Mode)
}

func (r *ReadConfig) CommMode() (desfire.CommMode, error) {
	switch strings.ToLower(strings.TrimSpace(r.Comm)) {
	case "", "plain":
		return desfire.CommPlain, nil
	case "maced", "mac":
		return desfire.CommMACed, nil
	case "enciphered", "full":
		return desfire.CommEnciphered, nil
	}
	return desfire.CommPlain, fmt.Errorf("config.read.comm must be plain, maced or enciphered, got %q", r.Comm)
}

func (c *Config) resolvePaths(configPath string) {
	if c.Auth != nil {
		c.Auth.KeyFile = resolvePath(filepath.Dir(configPath), c.Auth.KeyFile)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
