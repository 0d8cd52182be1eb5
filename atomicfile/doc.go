/*
Package atomicfile replaces a file in one step: data is written to a
temporary file in the destination directory, synced and then renamed over
the destination.

Readers of the destination see either the old or the new content, never a
partially written file. If Write() or Close() fails the temporary file is
removed and the destination is left untouched.

	func saveEntries(path string, d []byte) error {
		f, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// RemoveIfNotClosed after Close is a no-op
		defer f.RemoveIfNotClosed()

		if _, err = f.Write(d); err != nil {
			return err
		}
		return f.Close()
	}

For the common case of writing a []byte, use WriteFile.
*/
package atomicfile
