package media

import (
	"fmt"
	"io"
	"os"
)

// Spooled is an upload buffered to a temporary file so it can be inspected
// before it is stored.
type Spooled struct {
	Path string
	Size int64
	file *os.File
}

// Spool copies r into a temporary file, failing with ErrTooLarge past max
// bytes. Callers must call Remove.
func Spool(r io.Reader, max int64) (*Spooled, error) {
	f, err := os.CreateTemp("", "civicreport-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	s := &Spooled{Path: f.Name(), file: f}
	n, err := io.Copy(f, LimitReader(r, max))
	if err != nil {
		s.Remove()
		return nil, err
	}
	s.Size = n
	return s, nil
}

// Reader rewinds the spool file and returns it for reading.
func (s *Spooled) Reader() (io.Reader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}
	return s.file, nil
}

// Remove closes and deletes the temporary file.
func (s *Spooled) Remove() {
	if s == nil || s.file == nil {
		return
	}
	_ = s.file.Close()
	_ = os.Remove(s.Path)
	s.file = nil
}
