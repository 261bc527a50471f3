package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/patrickwarner/civicreport/internal/models"
)

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

// Sniff detects the media type of r from its leading bytes. The returned
// reader replays those bytes followed by the rest of r.
func Sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

// TypeError is returned when an upload's detected type does not match the
// slot it was uploaded to.
type TypeError struct {
	Kind     models.MediaKind
	Detected string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("Invalid %s file type. Please upload a valid %s.", e.Kind, e.Kind)
}

func (e *TypeError) Is(target error) bool { return target == ErrUnsupportedType }

// CheckKind verifies that mt is an image for the image slot or a video for
// the video slot.
func CheckKind(mt *mimetype.MIME, kind models.MediaKind) error {
	if mt == nil || !strings.HasPrefix(mt.String(), string(kind)+"/") {
		detected := ""
		if mt != nil {
			detected = mt.String()
		}
		return &TypeError{Kind: kind, Detected: detected}
	}
	return nil
}
