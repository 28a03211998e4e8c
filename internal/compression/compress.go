// Package compression gzips export bundles on their way to disk.
// Readers detect gzip by its magic bytes, so a bundle verifies the same
// whether or not it was compressed.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/fsutil"
)

// CompressionLevel represents the compression level.
type CompressionLevel int

const (
	// LevelNone disables compression.
	LevelNone CompressionLevel = 0
	// LevelFast uses fastest compression (gzip level 1).
	LevelFast CompressionLevel = 1
	// LevelDefault uses default compression (gzip level 6).
	LevelDefault CompressionLevel = 6
	// LevelMax uses maximum compression (gzip level 9).
	LevelMax CompressionLevel = 9
)

// Extension marks a compressed bundle.
const Extension = ".gz"

var gzipMagic = []byte{0x1f, 0x8b}

// Compressor handles compression operations.
type Compressor struct {
	Level CompressionLevel
}

// NewCompressor creates a new compressor with the specified level.
// Level 0 means no compression.
func NewCompressor(level CompressionLevel) *Compressor {
	if level < LevelNone {
		level = LevelNone
	}
	return &Compressor{Level: level}
}

// NewCompressorFromString creates a compressor from a string level.
// Valid values: "none", "fast", "default", "max"
func NewCompressorFromString(level string) (*Compressor, error) {
	switch strings.ToLower(level) {
	case "none", "0":
		return NewCompressor(LevelNone), nil
	case "fast", "1":
		return NewCompressor(LevelFast), nil
	case "default", "6", "":
		return NewCompressor(LevelDefault), nil
	case "max", "9":
		return NewCompressor(LevelMax), nil
	default:
		return nil, errclass.ErrValidation.WithMessagef("invalid compression level %q (must be none, fast, default, or max)", level)
	}
}

// ForPath picks a compressor for an output path. An explicit level wins;
// otherwise paths ending in .gz get the default level and others none.
func ForPath(path, level string) (*Compressor, error) {
	if level != "" {
		return NewCompressorFromString(level)
	}
	if IsCompressedFile(path) {
		return NewCompressor(LevelDefault), nil
	}
	return NewCompressor(LevelNone), nil
}

// IsEnabled returns true if compression is enabled.
func (c *Compressor) IsEnabled() bool {
	return c.Level > LevelNone
}

// String returns the string representation of the compressor.
func (c *Compressor) String() string {
	switch c.Level {
	case LevelNone:
		return "none"
	case LevelFast:
		return "fast"
	case LevelDefault:
		return "default"
	case LevelMax:
		return "max"
	default:
		return fmt.Sprintf("level-%d", c.Level)
	}
}

// Encode returns data gzipped at the compressor's level, or unchanged when
// compression is disabled.
func (c *Compressor) Encode(data []byte) ([]byte, error) {
	if !c.IsEnabled() {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, int(c.Level))
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile encodes data and writes it atomically.
func (c *Compressor) WriteFile(path string, data []byte, perm os.FileMode) error {
	out, err := c.Encode(data)
	if err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	return fsutil.AtomicWrite(path, out, perm)
}

// Decode gunzips data that starts with the gzip magic and returns anything
// else unchanged.
func Decode(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer r.Close()

	result, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return result, nil
}

// ReadFile reads a file and decodes it if it is gzipped.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return out, nil
}

// IsCompressed reports whether data starts with the gzip magic.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// IsCompressedFile returns true if the file path indicates a compressed file.
func IsCompressedFile(path string) bool {
	return strings.HasSuffix(path, Extension)
}
