package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/complykit/audittrail/pkg/errclass"
	"github.com/complykit/audittrail/pkg/fsutil"
)

// maxLineSize bounds a single journal line; entries with large change sets
// exceed bufio's 64KiB default.
const maxLineSize = 4 << 20

// tailSize is how much of the file end is kept to recognize it again.
const tailSize = 512

// FileJournal stores ledger records as JSON lines. Every operation holds an
// exclusive flock on a sidecar lock file so separate processes sharing the
// journal are serialized, including across the rename done by Rewrite.
//
// A FileJournal remembers the file as it last read or wrote it. Append and
// Rewrite fail with ErrJournalConflict when another writer changed the file
// since then; the caller reloads and retries.
type FileJournal struct {
	path string
	mu   sync.Mutex
	seen fileState
}

// fileState identifies one version of the journal file. A zero fileState
// stands for a missing or empty file.
type fileState struct {
	info os.FileInfo
	size int64
	tail []byte
}

// NewFileJournal creates a journal at path. The file is created lazily.
func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

// Path returns the journal file path.
func (j *FileJournal) Path() string {
	return j.path
}

// LockPath returns the sidecar file used for cross-process locking.
func (j *FileJournal) LockPath() string {
	return j.path + ".lock"
}

// Append writes one record and fsyncs.
func (j *FileJournal) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	unlock, err := j.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := j.checkLocked(); err != nil {
		return err
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	j.seen = fileState{info: info, size: info.Size(), tail: lastBytes(append(j.seen.tail, line...))}
	return nil
}

// Rewrite atomically replaces the journal with recs.
func (j *FileJournal) Rewrite(recs []Record) error {
	var buf bytes.Buffer
	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal journal record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	unlock, err := j.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := j.checkLocked(); err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(j.path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	info, err := os.Stat(j.path)
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	j.seen = fileState{info: info, size: info.Size(), tail: lastBytes(buf.Bytes())}
	return nil
}

// Load reads every record. A missing file is an empty journal; a malformed
// line is reported as ErrJournalCorrupt.
func (j *FileJournal) Load() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	unlock, err := j.lock(false)
	if errors.Is(err, fs.ErrNotExist) {
		j.seen = fileState{}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer unlock()

	file, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		j.seen = fileState{}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var recs []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, errclass.ErrJournalCorrupt.WithMessagef("line %d: %v", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	j.seen = fileState{info: info, size: int64(len(data)), tail: lastBytes(data)}
	return recs, nil
}

// lock takes the sidecar flock. Writers create the journal directory;
// readers report fs.ErrNotExist when it is missing.
func (j *FileJournal) lock(create bool) (func(), error) {
	if create {
		if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.LockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal lock: %w", err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("flock journal: %w", err)
	}
	return func() {
		unlockFile(file)
		file.Close()
	}, nil
}

// checkLocked reports ErrJournalConflict when the file on disk is no longer
// the version this journal last saw. Callers hold the flock.
func (j *FileJournal) checkLocked() error {
	info, err := os.Stat(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		if j.seen.size == 0 {
			return nil
		}
		return errclass.ErrJournalConflict.WithMessagef("%s was removed", j.path)
	}
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	if info.Size() != j.seen.size || (j.seen.info != nil && !os.SameFile(info, j.seen.info)) {
		return errclass.ErrJournalConflict.WithMessagef("%s changed since it was read", j.path)
	}
	if len(j.seen.tail) == 0 {
		return nil
	}

	file, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()
	tail := make([]byte, len(j.seen.tail))
	if _, err := file.ReadAt(tail, info.Size()-int64(len(tail))); err != nil {
		return fmt.Errorf("read journal tail: %w", err)
	}
	if !bytes.Equal(tail, j.seen.tail) {
		return errclass.ErrJournalConflict.WithMessagef("%s changed since it was read", j.path)
	}
	return nil
}

func lastBytes(b []byte) []byte {
	if len(b) > tailSize {
		b = b[len(b)-tailSize:]
	}
	return bytes.Clone(b)
}
