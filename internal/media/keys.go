package media

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patrickwarner/civicreport/internal/models"
)

// Key prefixes for the two attachment slots.
const (
	ImagePrefix = "issues/images"
	VideoPrefix = "issues/videos"
)

// NewKey returns a unique object key for an upload of the given kind. ext
// includes the leading dot and may be empty.
func NewKey(kind models.MediaKind, ext string) string {
	prefix := ImagePrefix
	if kind == models.MediaVideo {
		prefix = VideoPrefix
	}
	return fmt.Sprintf("%s/%s_%d%s", prefix, uuid.NewString(), time.Now().UnixNano(), ext)
}
