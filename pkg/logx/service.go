package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "./remindbot.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the sinks. Loggers it hands out read the current zerolog
// logger on every line, so Apply takes effect without re-wiring components.
type Service struct {
	mu       sync.Mutex
	file     *os.File
	filePath string

	root    atomic.Pointer[zerolog.Logger]
	console io.Writer
}

// New applies cfg and returns the Service and its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{console: os.Stdout}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the sinks from cfg. The log file stays open across calls
// while its path is unchanged. Without any sink, output goes to the console.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(s.console))
	}

	wantPath := ""
	if cfg.File.Enabled {
		wantPath = strings.TrimSpace(cfg.File.Path)
		if wantPath == "" {
			wantPath = DefaultFilePath
		}
	}
	if wantPath != s.filePath {
		s.closeFileLocked()
		if wantPath != "" {
			if err := s.openFileLocked(wantPath); err != nil {
				fmt.Fprintf(os.Stderr, "logx: %v\n", err)
			}
		}
	}
	if s.file != nil {
		writers = append(writers, zerolog.SyncWriter(s.file))
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(s.console))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) openFileLocked(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", path, err)
	}
	s.file, s.filePath = f, path
	return nil
}

func (s *Service) closeFileLocked() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file, s.filePath = nil, ""
}

// Close releases the log file. Later lines go to the console only after the
// next Apply; until then they are dropped by the closed file writer.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.file
	s.file, s.filePath = nil, ""
	if f != nil {
		return f.Close()
	}
	return nil
}
