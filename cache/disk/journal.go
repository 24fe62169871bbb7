package disk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	journalFile       = "journal"
	journalFileTmp    = "journal.tmp"
	journalFileBackup = "journal.bkp"

	journalMagic   = "sketch.disklrucache"
	journalVersion = "1"

	opClean  = "CLEAN"
	opDirty  = "DIRTY"
	opRemove = "REMOVE"
	opRead   = "READ"
)

var (
	// ErrCorruptJournal reports a journal that cannot be replayed.
	ErrCorruptJournal = errors.New("disk: corrupt journal")

	keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)
)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("disk: invalid entry key %q", key)
	}
	return nil
}

// readJournal replays the journal into s.entries and s.lru.
// Any deviation from the expected format returns ErrCorruptJournal.
func (s *store) readJournal() error {
	f, err := os.Open(filepath.Join(s.dir, journalFile))
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := []string{journalMagic, journalVersion, strconv.Itoa(s.version), ""}
	for i, want := range header {
		line, err := readLine(r)
		if err != nil {
			return err
		}
		if line != want {
			return fmt.Errorf("%w: header line %d is %q, want %q", ErrCorruptJournal, i+1, line, want)
		}
	}

	lines := 0
	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := s.replay(line); err != nil {
			return err
		}
		lines++
	}
	s.redundantOps = lines - len(s.entries)
	return nil
}

// readLine returns the next newline-terminated line. A trailing fragment
// without a newline means the journal was truncated mid-write.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", fmt.Errorf("%w: truncated line %q", ErrCorruptJournal, line)
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func (s *store) replay(line string) error {
	op, rest, _ := strings.Cut(line, " ")
	switch op {
	case opClean:
		key, n, ok := strings.Cut(rest, " ")
		if !ok || validateKey(key) != nil {
			return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
		}
		size, err := strconv.ParseInt(n, 10, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
		}
		e := s.entryFor(key)
		e.readable = true
		e.dirtyOnLoad = false
		e.size = size
		s.lru.MoveToFront(e.elem)
	case opDirty:
		if validateKey(rest) != nil {
			return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
		}
		e := s.entryFor(rest)
		e.dirtyOnLoad = true
		s.lru.MoveToFront(e.elem)
	case opRemove:
		if validateKey(rest) != nil {
			return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
		}
		if e, ok := s.entries[rest]; ok {
			s.lru.Remove(e.elem)
			delete(s.entries, rest)
		}
	case opRead:
		if validateKey(rest) != nil {
			return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
		}
		if e, ok := s.entries[rest]; ok {
			s.lru.MoveToFront(e.elem)
		}
	default:
		return fmt.Errorf("%w: %q", ErrCorruptJournal, line)
	}
	return nil
}

// processJournal drops entries whose edit never completed and totals the
// size of the rest. Entries whose data file disappeared are dropped too.
func (s *store) processJournal() {
	for el := s.lru.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		removeFiles(s.dirtyPaths(e.key)...)
		if e.dirtyOnLoad || !e.readable {
			removeFiles(s.cleanPaths(e.key)...)
			s.drop(e)
		} else if _, err := os.Stat(s.dataPath(e.key)); err != nil {
			removeFiles(s.cleanPaths(e.key)...)
			s.drop(e)
		} else {
			s.size += e.size
		}
		el = next
	}
}

// rebuildJournal writes a compact journal holding one line per live entry,
// oldest first, and swaps it in with a rename.
func (s *store) rebuildJournal() error {
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
		s.writer = nil
	}

	tmpPath := filepath.Join(s.dir, journalFileTmp)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\n%s\n%d\n\n", journalMagic, journalVersion, s.version)
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.editor != nil {
			fmt.Fprintf(w, "%s %s\n", opDirty, e.key)
		} else {
			fmt.Fprintf(w, "%s %s %d\n", opClean, e.key, e.size)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	journalPath := filepath.Join(s.dir, journalFile)
	backupPath := filepath.Join(s.dir, journalFileBackup)
	if _, err := os.Stat(journalPath); err == nil {
		if err := os.Rename(journalPath, backupPath); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, journalPath); err != nil {
		return err
	}
	_ = os.Remove(backupPath)

	s.redundantOps = 0
	return s.openJournal()
}

func (s *store) openJournal() error {
	f, err := os.OpenFile(filepath.Join(s.dir, journalFile), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.journal = f
	s.writer = bufio.NewWriter(f)
	return nil
}

// appendJournal writes one line and flushes it so a crash never leaves a
// DIRTY line unrecorded.
func (s *store) appendJournal(op, key string, size ...int64) error {
	if s.writer == nil {
		return ErrClosed
	}
	var err error
	if len(size) > 0 {
		_, err = fmt.Fprintf(s.writer, "%s %s %d\n", op, key, size[0])
	} else {
		_, err = fmt.Fprintf(s.writer, "%s %s\n", op, key)
	}
	if err != nil {
		return err
	}
	return s.writer.Flush()
}

// restoreBackup recovers from a crash between the two renames of
// rebuildJournal.
func restoreBackup(dir string) {
	backupPath := filepath.Join(dir, journalFileBackup)
	if _, err := os.Stat(backupPath); err != nil {
		return
	}
	journalPath := filepath.Join(dir, journalFile)
	if _, err := os.Stat(journalPath); err == nil {
		_ = os.Remove(backupPath)
		return
	}
	_ = os.Rename(backupPath, journalPath)
}
