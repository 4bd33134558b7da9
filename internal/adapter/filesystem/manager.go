package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/czds-fetch/internal/port"
)

const tempSuffix = ".downloading"

// ErrInsufficientSpace is returned when a zone file would not fit on disk
var ErrInsufficientSpace = errors.New("insufficient space")

// Manager handles the zone file output directory
type Manager struct {
	outputDir  string
	bufferSize int

	mu       sync.Mutex
	dirReady bool

	mkdirAll func(path string, perm os.FileMode) error
}

// Ensure Manager implements port.ZoneStore
var _ port.ZoneStore = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(outputDir string) (*Manager, error) {
	return NewManagerWithBufferSize(outputDir, 1024*1024) // 1MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size.
// The output directory is not created until the first write.
func NewManagerWithBufferSize(outputDir string, bufferSize int) (*Manager, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}

	return &Manager{
		outputDir:  abs,
		bufferSize: bufferSize,
		mkdirAll:   os.MkdirAll,
	}, nil
}

// OutputDir returns the absolute output directory
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// BeginBatch resets the directory state and sweeps stale temp files
func (m *Manager) BeginBatch(maxAge time.Duration) (int, error) {
	m.mu.Lock()
	m.dirReady = false
	m.mu.Unlock()

	if maxAge <= 0 {
		return 0, nil
	}
	return m.CleanOldTempFiles(maxAge)
}

// EnsureDir creates the output directory if it does not exist
func (m *Manager) EnsureDir() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirReady {
		return nil
	}
	if info, err := os.Stat(m.outputDir); err == nil && info.IsDir() {
		m.dirReady = true
		return nil
	}

	// MkdirAll tolerates the directory appearing concurrently
	if err := m.mkdirAll(m.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	m.dirReady = true
	return nil
}

// ZonePath returns the final path for a zone file name
func (m *Manager) ZonePath(name string) string {
	return filepath.Join(m.outputDir, name)
}

// WriteZoneFile writes reader to a temp file next to the target and renames
// it over {outputDir}/{name}. An existing file of the same name is replaced.
func (m *Manager) WriteZoneFile(name string, reader io.Reader) (string, int64, error) {
	if err := validateName(name); err != nil {
		return "", 0, err
	}

	if err := m.EnsureDir(); err != nil {
		return "", 0, err
	}

	finalPath := m.ZonePath(name)

	f, err := os.CreateTemp(m.outputDir, "."+name+".*"+tempSuffix)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", 0, &CopyError{Err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, written, nil
}

// CheckSpace verifies the output filesystem has room for size bytes
func (m *Manager) CheckSpace(size int64) error {
	if size <= 0 {
		return nil
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}

	usage, err := m.GetDiskUsage()
	if err != nil {
		return err
	}
	if uint64(size) > usage.Free {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, size, usage.Free)
	}
	return nil
}

// CopyError reports a failure while streaming content into the temp file.
// The cause may be on either side of the copy.
type CopyError struct {
	Err error
}

func (e *CopyError) Error() string {
	return "failed to write file: " + e.Err.Error()
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read output dir: %w", err)
	}

	count := 0
	threshold := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(filepath.Join(m.outputDir, entry.Name())); removeErr == nil {
				count++
			}
		}
	}
	return count, nil
}

// validateName rejects names that would escape the output directory
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}
