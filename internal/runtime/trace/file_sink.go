package trace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/heutelbeck/sapl-go/internal/domain/policy"
)

// traceFilePattern matches trace-YYYY-MM-DD.jsonl or trace-YYYY-MM-DD-N.jsonl,
// the same two-group shape as audit.auditFilePattern.
var traceFilePattern = regexp.MustCompile(`^trace-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

// FileSinkConfig configures the JSON Lines trace sink, the same knobs
// internal/adapter/outbound/audit.AuditFileConfig exposes for its own
// rotation discipline, trimmed to what a trace stream needs (no
// retention/cache — traces are typically shipped, not queried locally).
type FileSinkConfig struct {
	// Dir is the directory trace files are written into.
	Dir string
	// MaxFileSizeMB caps a single trace file before rotating (default 100).
	MaxFileSizeMB int
}

// FileSink writes one JSON line per Record to a size-rotated file,
// adapting internal/adapter/outbound/audit.FileAuditStore's
// date+size rotation idiom to a write-only trace stream: a trace
// channel has no "recent" cache to serve queries from and no
// retention policy of its own (that's an operational concern for
// whatever ships the files elsewhere), so FileSink keeps only the
// rotation half of that file.
type FileSink struct {
	mu          sync.Mutex
	dir         string
	maxFileSize int64
	file        *os.File
	date        string
	size        int64
	suffix      int
	logger      *slog.Logger
}

// NewFileSink creates the trace directory if needed and opens today's
// file.
func NewFileSink(cfg FileSinkConfig, logger *slog.Logger) (*FileSink, error) {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("trace: create directory: %w", err)
	}
	s := &FileSink{
		dir:         cfg.Dir,
		maxFileSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		logger:      logger,
	}
	if err := s.openLocked(time.Now().UTC().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("trace: open file: %w", err)
	}
	return s, nil
}

// Record implements policy.TraceSink: it appends one JSON line per
// emission, rotating by date or size as needed. Marshal/write failures
// are logged, never returned or panicked — a trace sink must not be
// able to take evaluation down with it (spec.md §7's "the stream itself
// does not terminate abnormally" extends to the channel observing it).
func (s *FileSink) Record(v policy.Vote) {
	rec := BuildRecord(v)
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("trace: marshal record", "error", err)
		return
	}
	line := append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if today != s.date {
		if err := s.rotateDateLocked(today); err != nil {
			s.logger.Error("trace: date rotation", "error", err)
			return
		}
	}
	if s.size >= s.maxFileSize {
		if err := s.rotateSizeLocked(); err != nil {
			s.logger.Error("trace: size rotation", "error", err)
			return
		}
	}
	n, err := s.file.Write(line)
	if err != nil {
		s.logger.Error("trace: write record", "error", err)
		return
	}
	s.size += int64(n)
}

// Close syncs and closes the current file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	_ = s.file.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) openLocked(date string) error {
	suffix := s.highestSuffixLocked(date)
	f, size, err := s.openFileLocked(date, suffix)
	if err != nil {
		return err
	}
	s.file = f
	s.date = date
	s.size = size
	s.suffix = suffix
	return nil
}

func (s *FileSink) highestSuffixLocked(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		m := traceFilePattern.FindStringSubmatch(e.Name())
		if m == nil || m[1] != date {
			continue
		}
		suffix := 0
		if m[2] != "" {
			suffix, _ = strconv.Atoi(m[2])
		}
		if suffix > highest {
			highest = suffix
		}
	}
	return highest
}

func (s *FileSink) filename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("trace-%s.jsonl", date)
	}
	return fmt.Sprintf("trace-%s-%d.jsonl", date, suffix)
}

func (s *FileSink) openFileLocked(date string, suffix int) (*os.File, int64, error) {
	path := filepath.Join(s.dir, s.filename(date, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *FileSink) rotateDateLocked(date string) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	s.suffix = 0
	return s.openLocked(date)
}

func (s *FileSink) rotateSizeLocked() error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	s.suffix++
	f, size, err := s.openFileLocked(s.date, s.suffix)
	if err != nil {
		return err
	}
	s.file = f
	s.size = size
	return nil
}
