package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/ebfe/scard"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/gregLibert/desfire/internal/config"
	"github.com/gregLibert/desfire/pkg/desfire"
	"github.com/gregLibert/desfire/pkg/iso7816"
	"github.com/gregLibert/desfire/pkg/keystore"
	"github.com/gregLibert/desfire/pkg/tlv"
	"github.com/gregLibert/desfire/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if *logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("run", uuid.New().String())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// --- 1. Hardware Setup ---
	ctx, card := connectToCard(*cfg.Reader.Index)

	defer func() {
		if err := ctx.Release(); err != nil {
			logger.Warn("failed to release context", "err", err)
		}
	}()

	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			logger.Warn("failed to disconnect card", "err", err)
		}
	}()

	// --- 2. Session Setup ---
	clientOpts := []iso7816.ClientOption{iso7816.WithLogger(logger)}
	if cfg.Reader.FSCI != nil {
		clientOpts = append(clientOpts, iso7816.WithFrameSize(transport.FrameSizeFromFSCI(*cfg.Reader.FSCI)))
	}
	client := iso7816.NewClient(card, clientOpts...)
	sessionOpts := append(cfg.SessionOptions(), desfire.WithLogger(logger))
	if cfg.Auth != nil {
		store, err := loadKeys(cfg.Auth)
		if err != nil {
			logger.Error("key setup failed", "err", err)
			return
		}
		sessionOpts = append(sessionOpts, desfire.WithKeyStore(store))
	}
	s, err := desfire.New(client, sessionOpts...)
	if err != nil {
		logger.Error("session setup failed", "err", err)
		return
	}

	// --- 3. Execution Flow ---
	if err := run(s, cfg); err != nil {
		logger.Error("run failed", "err", err, "kind", desfire.KindOf(err))
		for i, tx := range client.LastTrace() {
			var rx []byte
			if tx.Response != nil {
				rx = tx.Response.Bytes()
			}
			logger.Debug("last exchange", "n", i, "tx", tlv.Upper(tx.Command), "rx", tlv.Upper(rx))
		}
		return
	}
	fmt.Println("\n>> Done")
}

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard(index int) (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) <= index {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("No smart card reader at index %d.", index)
	}

	fmt.Printf(">> Using reader: %s\n", readers[index])

	card, err := ctx.Connect(readers[index], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

func run(s *desfire.Session, cfg *config.Config) error {
	v, err := s.GetVersion()
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	fmt.Printf(">> Card UID %X, hardware %d.%d, software %d.%d\n",
		v.UID, v.HWMajorVer, v.HWMinorVer, v.SWMajorVer, v.SWMinorVer)

	if err := selectApplication(s, cfg); err != nil {
		return err
	}

	if cfg.Auth != nil {
		if err := authenticate(s, cfg.Auth); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		fmt.Printf(">> Authenticated (%s) with key %d\n", s.AuthMode(), s.KeyNo())
	}

	files, err := s.GetFileIDs()
	if err != nil {
		return fmt.Errorf("get file IDs: %w", err)
	}
	fmt.Printf(">> Files: % X\n", files)
	for _, no := range files {
		fs, err := s.GetFileSettings(no)
		if errors.Is(err, desfire.ErrPermissionDenied) {
			fmt.Printf("   [%02X] settings not readable\n", no)
			continue
		}
		if err != nil {
			return fmt.Errorf("get file settings %d: %w", no, err)
		}
		fmt.Printf("   [%02X] %s %s size %d\n", no, fs.Type, fs.Comm, fs.Size)
	}

	if cfg.Read != nil {
		return readFile(s, cfg.Read)
	}
	return nil
}

func selectApplication(s *desfire.Session, cfg *config.Config) error {
	if cfg.Application.DFName == "" {
		aid, err := cfg.AID()
		if err != nil {
			return err
		}
		if err := s.SelectApplication(aid); err != nil {
			return fmt.Errorf("select application %s: %w", cfg.Application.AID, err)
		}
		return nil
	}

	name, err := cfg.DFName()
	if err != nil {
		return err
	}
	fci, err := s.IsoSelectFile(iso7816.SelectByDFName, iso7816.ReturnFCI, name)
	if err != nil {
		return fmt.Errorf("select DF %X: %w", name, err)
	}
	if fci != nil {
		fmt.Printf(">> Selected DF %X\n", fci.DFName())
		for _, line := range fci.Describe() {
			fmt.Println(line)
		}
	}
	return nil
}

func authenticate(s *desfire.Session, a *config.AuthConfig) error {
	mode, err := a.AuthMode()
	if err != nil {
		return err
	}
	keyNo := *a.KeyNo
	switch mode {
	case desfire.AuthD40:
		return s.Authenticate(keyNo, uint16(keyNo), a.KeyVersion)
	case desfire.AuthISO:
		return s.AuthenticateISO(keyNo, uint16(keyNo), a.KeyVersion)
	case desfire.AuthAES:
		return s.AuthenticateAES(keyNo, uint16(keyNo), a.KeyVersion)
	default:
		_, err := s.AuthenticateEV2(true, keyNo, uint16(keyNo), a.KeyVersion, nil)
		return err
	}
}

// loadKeys reads the configured key file, or prompts for the key on the
// terminal. Key store entries are numbered after the card key number.
func loadKeys(a *config.AuthConfig) (*keystore.Store, error) {
	if a.KeyFile != "" {
		return keystore.Load(a.KeyFile)
	}

	kt, err := keystore.ParseKeyType(a.KeyType)
	if err != nil {
		return nil, err
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no key file configured and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s key %d (hex): ", kt, *a.KeyNo)
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	value, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(string(line)), " ", ""))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}

	store := keystore.New()
	if err := store.Set(uint16(*a.KeyNo), a.KeyVersion, keystore.Key{Type: kt, Value: value}); err != nil {
		return nil, err
	}
	return store, nil
}

// readFile reads a data file, resuming while the session hands back full
// buffers.
func readFile(s *desfire.Session, r *config.ReadConfig) error {
	comm, err := r.CommMode()
	if err != nil {
		return err
	}
	data, more, err := s.ReadData(comm, desfire.NativeChaining, *r.FileNo, r.Offset, r.Length)
	for err == nil && more {
		var next []byte
		next, more, err = s.Continue()
		data = append(data, next...)
	}
	if err != nil {
		return fmt.Errorf("read file %d: %w", *r.FileNo, err)
	}
	fmt.Printf(">> File %02X (%d bytes):\n%s", *r.FileNo, len(data), hex.Dump(data))
	return nil
}
