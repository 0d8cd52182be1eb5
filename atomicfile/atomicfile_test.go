package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file '%s' doesn't exist, os.Stat() failed with '%s'", path, err)
	}
	if !st.Mode().IsRegular() {
		t.Fatalf("path '%s' exists but is not a file (mode: %d)", path, int(st.Mode()))
	}
}

func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("file '%s' exist, expected to not exist", path)
	}
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("error: %s", err)
	}
}

func assertFileContent(t *testing.T, path string, exp string) {
	t.Helper()
	d, err := os.ReadFile(path)
	assertNoError(t, err)
	if string(d) != exp {
		t.Fatalf("path: '%s', expected content: '%s', got: '%s'", path, exp, string(d))
	}
}

func TestSimulateError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "guestbook.json")
	f, err := New(dst)
	assertNoError(t, err)
	assertFileExists(t, f.tmpPath)
	_, err = f.Write([]byte("[]"))
	assertNoError(t, err)
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	if err = f.Close(); err != errSimulated {
		t.Fatalf("expected %v, got %v", errSimulated, err)
	}
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
	// the first error sticks
	if err = f.Close(); err != errSimulated {
		t.Fatalf("expected %v, got %v", errSimulated, err)
	}
}

func writeWithPanic(t *testing.T, f *File) {
	defer f.RemoveIfNotClosed()

	_, err := f.Write([]byte("[]"))
	assertNoError(t, err)
	panic("simulating a crash")
}

func TestCancelOnPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "guestbook.json")
	assertNoError(t, os.WriteFile(dst, []byte("old"), 0644))
	f, err := New(dst)
	assertNoError(t, err)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected to panic")
			}
		}()
		writeWithPanic(t, f)
	}()
	assertFileNotExists(t, f.tmpPath)
	// destination is untouched
	assertFileContent(t, dst, "old")

	_, err = f.Write([]byte("more"))
	if err != ErrCancelled {
		t.Fatalf("expected err to be %v, got %v", ErrCancelled, err)
	}
	if err = f.Close(); err != ErrCancelled {
		t.Fatalf("expected err to be %v, got %v", ErrCancelled, err)
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "guestbook.json")
	{
		f, err := New(dst)
		assertNoError(t, err)
		assertNoError(t, f.Close())
		assertFileContent(t, dst, "")
		assertFileNotExists(t, f.tmpPath)
	}
	{
		f, err := New(dst)
		assertNoError(t, err)
		_, err = f.WriteString(`[{"author":"Alice"}]`)
		assertNoError(t, err)
		// not visible until Close
		assertFileContent(t, dst, "")
		assertNoError(t, f.Close())
		assertFileContent(t, dst, `[{"author":"Alice"}]`)
		// calling Close twice is a no-op
		assertNoError(t, f.Close())
		// and so is RemoveIfNotClosed after Close
		f.RemoveIfNotClosed()
		assertFileExists(t, dst)
	}

	entries, err := os.ReadDir(dir)
	assertNoError(t, err)
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file in '%s', got %d files", dir, len(entries))
	}
}

func TestWriteFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "guestbook.json")
	assertNoError(t, WriteFile(dst, []byte("[]")))
	assertFileContent(t, dst, "[]")
	assertNoError(t, WriteFile(dst, []byte("[1]")))
	assertFileContent(t, dst, "[1]")

	st, err := os.Stat(dst)
	assertNoError(t, err)
	if runtime.GOOS != "windows" && st.Mode().Perm() != 0644 {
		t.Fatalf("expected perm 0644, got %v", st.Mode().Perm())
	}
}

func TestNonExistentDir(t *testing.T) {
	// we fail early when the directory doesn't exist
	dst := filepath.Join(t.TempDir(), "foo", "guestbook.json")
	f, err := New(dst)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if f != nil {
		t.Fatalf("expected f to be nil, got %v", f)
	}
	if err = WriteFile(dst, []byte("[]")); err == nil {
		t.Fatalf("expected an error")
	}
}
