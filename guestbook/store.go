package guestbook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/kjk/guestbook/atomicfile"
	"github.com/kjk/guestbook/log"
	"github.com/tidwall/pretty"
)

// DefaultFileName is the name of guestbook file in data directory
const DefaultFileName = "guestbook.json"

type readStatus int

const (
	readOK readStatus = iota
	// the file doesn't exist yet
	readMissing
	// the file exists but couldn't be read or parsed
	readCorrupt
)

func (s readStatus) String() string {
	switch s {
	case readOK:
		return "ok"
	case readMissing:
		return "missing"
	case readCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("readStatus(%d)", int(s))
}

// Store is a guestbook stored as a JSON file.
//
// Append holds a lock for the whole read-modify-write so concurrent
// Append calls in one process don't lose entries. Different processes
// writing the same file can still lose entries.
type Store struct {
	path string
	mu   sync.Mutex

	// OnWrite, if set, is called after the file was successfully written.
	// It's called with the lock held so it should be quick.
	OnWrite func(path string)
}

// New returns a store that keeps entries in a file at path.
// The file doesn't have to exist. Its directory must exist
// before the first Append.
func New(path string) *Store {
	return &Store{
		path: path,
	}
}

// Path returns the path of the guestbook file
func (s *Store) Path() string {
	return s.path
}

// status says why the list is empty, err is only set for readCorrupt
func readEntries(path string) ([]Entry, readStatus, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, readMissing, nil
		}
		return nil, readCorrupt, err
	}
	var entries []Entry
	if err = json.Unmarshal(d, &entries); err != nil {
		return nil, readCorrupt, err
	}
	return entries, readOK, nil
}

// must be called with s.mu held
func (s *Store) load() []Entry {
	entries, status, err := readEntries(s.path)
	if status == readCorrupt {
		log.Errorf("guestbook: reading '%s' failed with '%s', treating as empty\n", s.path, err)
		log.Event("guestbook_corrupt", "path", s.path, "error", err.Error())
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// List returns all entries, newest first.
// If the file doesn't exist or can't be parsed, returns an empty list.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func marshalEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	d := buf.Bytes()
	opts := &pretty.Options{
		Width:  80,
		Indent: "  ",
	}
	return pretty.PrettyOptions(d, opts), nil
}

// Append adds an entry posted now as the first entry and
// re-writes the file. An empty or corrupt file is replaced by
// a file with just the new entry.
func (s *Store) Append(author, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		Author:   author,
		Comment:  comment,
		PostedAt: timestampNow(),
	}
	prev := s.load()
	entries := make([]Entry, 0, len(prev)+1)
	entries = append(entries, e)
	entries = append(entries, prev...)

	d, err := marshalEntries(entries)
	if err != nil {
		return err
	}
	if err = atomicfile.WriteFile(s.path, d); err != nil {
		return fmt.Errorf("guestbook: writing '%s' failed: %w", s.path, err)
	}
	log.Event("guestbook_append", "entries", len(entries), "size", len(d))
	if s.OnWrite != nil {
		s.OnWrite(s.path)
	}
	return nil
}
