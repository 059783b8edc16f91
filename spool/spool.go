// Package spool - Request-scoped temporary files removed exactly once.
//
// A Scope owns every Spool a request creates. Ownership either stays with the
// request, which calls Release on its error paths, or moves to a Stream whose
// consumer triggers Release by reading to the end or closing it.
package spool

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Spool is a temporary file on disk with a single owner.
type Spool struct {
	path string
	file *os.File
	once sync.Once
	err  error
	log  *zap.Logger
}

// Path returns the file location.
func (s *Spool) Path() string { return s.path }

// File returns the handle opened by Create, or nil once it has been closed.
func (s *Spool) File() *os.File { return s.file }

// CloseFile closes the handle opened by Create without deleting the file.
func (s *Spool) CloseFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return errors.Wrapf(err, "close spool %s", s.path)
	}
	return nil
}

// Remove closes and deletes the file. Only the first call has an effect;
// later calls return the first call's result. A file that is already gone is
// not an error.
func (s *Spool) Remove() error {
	s.once.Do(func() {
		_ = s.CloseFile()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.err = errors.Wrapf(err, "remove spool %s", s.path)
			s.log.Warn("spool removal failed", zap.String("path", s.path), zap.Error(err))
		}
		metrics.SpoolsActive.Dec()
	})
	return s.err
}

// Scope tracks the spools of one request.
type Scope struct {
	dir string
	log *zap.Logger

	mu       sync.Mutex
	spools   []*Spool
	released bool
}

// NewScope returns an empty scope creating files under dir. An empty dir
// uses os.TempDir().
func NewScope(dir string, log *zap.Logger) *Scope {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Scope{dir: dir, log: log}
}

// Create opens a new uniquely named file in the scope's directory.
//
// Arguments:
//   - pattern: A name such as "in-*.mp4"; the last "*" is replaced by a uuid.
//     Without a "*" the uuid is prefixed.
//
// Returns:
//   - *Spool: The open spool, registered with the scope.
//   - error: An error if the scope was released or the file cannot be created.
func (s *Scope) Create(pattern string) (*Spool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, errors.New("spool scope already released")
	}

	id := uuid.NewString()
	name := id + "-" + pattern
	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		name = pattern[:i] + id + pattern[i+1:]
	}
	path := filepath.Join(s.dir, filepath.Base(name))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "create spool in %s", s.dir)
	}

	sp := &Spool{path: path, file: f, log: s.log}
	s.spools = append(s.spools, sp)
	metrics.SpoolsActive.Inc()

	s.log.Debug("spool created", zap.String("path", path))
	return sp, nil
}

// Release removes every spool in the scope. It is safe to call more than
// once and from several goroutines; each file is deleted exactly once.
func (s *Scope) Release() error {
	s.mu.Lock()
	s.released = true
	spools := s.spools
	s.spools = nil
	s.mu.Unlock()

	var first error
	for _, sp := range spools {
		if err := sp.Remove(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stream hands the scope to a reader over sp. The spool is read from the
// start. The scope is released on the first EOF, read error or Close,
// whichever comes first.
//
// On error the scope has already been released.
func (s *Scope) Stream(sp *Spool) (*Stream, error) {
	if err := sp.CloseFile(); err != nil {
		s.Release()
		return nil, err
	}

	f, err := os.Open(sp.Path())
	if err != nil {
		s.Release()
		return nil, errors.Wrapf(err, "reopen spool %s", sp.Path())
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		s.Release()
		return nil, errors.Wrapf(err, "stat spool %s", sp.Path())
	}

	return &Stream{file: f, size: info.Size(), scope: s}, nil
}

// Stream is an io.ReadCloser over a spool that releases its scope when the
// data is consumed or abandoned.
type Stream struct {
	file  *os.File
	size  int64
	scope *Scope
	once  sync.Once
	err   error
}

// Size returns the length of the spooled data in bytes.
func (s *Stream) Size() int64 { return s.size }

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.file.Read(p)
	if err != nil {
		// Covers io.EOF as well as real failures.
		s.finish()
	}
	return n, err
}

// Close releases the scope. Later calls return the first result.
func (s *Stream) Close() error {
	s.finish()
	return s.err
}

func (s *Stream) finish() {
	s.once.Do(func() {
		if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.err = errors.Wrap(err, "close spool stream")
		}
		if err := s.scope.Release(); err != nil && s.err == nil {
			s.err = err
		}
	})
}
