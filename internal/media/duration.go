package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/abema/go-mp4"
)

var (
	ErrVideoTooLong     = errors.New("video exceeds maximum duration")
	ErrUnknownDuration  = errors.New("video duration could not be determined")
	errNoMovieHeader    = errors.New("no movie header")
	defaultProbeTimeout = 10 * time.Second
)

// isobmffTypes are container types whose duration go-mp4 can read.
var isobmffTypes = map[string]bool{
	"video/mp4":         true,
	"video/quicktime":   true,
	"video/3gpp":        true,
	"video/3gpp2":       true,
	"video/x-m4v":       true,
	"video/iso.segment": true,
}

// DurationProber reads the length of a video file. MP4 family containers are
// parsed in process; other formats fall back to ffprobe when FFProbePath is
// set.
type DurationProber struct {
	FFProbePath string
	Timeout     time.Duration
}

// Probe returns the duration of the video at path in seconds.
func (p DurationProber) Probe(ctx context.Context, path, contentType string) (float64, error) {
	var errs []error
	if isobmffTypes[contentType] {
		d, err := probeMP4(path)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("mp4: %w", err))
	}
	if p.FFProbePath != "" {
		d, err := p.probeFFProbe(ctx, path)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("ffprobe: %w", err))
	}
	if len(errs) == 0 {
		return 0, fmt.Errorf("%w: no prober for %s", ErrUnknownDuration, contentType)
	}
	return 0, fmt.Errorf("%w: %w", ErrUnknownDuration, errors.Join(errs...))
}

func probeMP4(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := mp4.Probe(f)
	if err != nil {
		return 0, err
	}
	if info.Timescale == 0 {
		return 0, errNoMovieHeader
	}
	return float64(info.Duration) / float64(info.Timescale), nil
}

func (p DurationProber) probeFFProbe(ctx context.Context, path string) (float64, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.FFProbePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	return parseFFProbeDuration(string(out))
}

func parseFFProbeDuration(out string) (float64, error) {
	v := strings.TrimSpace(out)
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

// DurationError reports a video longer than the allowed maximum.
type DurationError struct {
	Seconds float64
	Max     float64
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("Video must be %s seconds or less. Your video is %.1f seconds long.",
		strconv.FormatFloat(e.Max, 'f', -1, 64), e.Seconds)
}

func (e *DurationError) Is(target error) bool { return target == ErrVideoTooLong }

// ValidateVideoDuration rejects durations strictly greater than max.
func ValidateVideoDuration(seconds, max float64) error {
	if seconds > max {
		return &DurationError{Seconds: seconds, Max: max}
	}
	return nil
}
