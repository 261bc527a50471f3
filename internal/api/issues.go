package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/detector"
	"github.com/patrickwarner/civicreport/internal/media"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/ratelimit"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before the rest spills to temporary files.
const multipartMemory = 8 << 20

// Messages shown to reporters.
const (
	msgRateLimited     = "Too many reports. Please try again later."
	msgDailyLimit      = "Daily report limit reached. Please try again tomorrow."
	msgTooLarge        = "Uploaded file is too large."
	msgUnknownDuration = "Could not determine video duration. Please upload an MP4 or MOV video."
	msgNoHazard        = "No hazard was detected in the uploaded media."
	msgBadForm         = "Invalid form submission."
)

// upload is one accepted file awaiting storage.
type upload struct {
	kind    models.MediaKind
	mime    *mimetype.MIME
	spool   *media.Spooled
	sha256  string
	seconds *float64
	key     string
}

func (u *upload) ref() models.MediaRef {
	return models.MediaRef{Key: u.key, ContentType: u.mime.String(), Size: u.spool.Size, DurationSeconds: u.seconds}
}

// uploadError is a rejection with a client-facing message.
type uploadError struct {
	status int
	msg    string
	err    error
}

func (e *uploadError) Error() string { return e.msg }
func (e *uploadError) Unwrap() error { return e.err }

// CreateIssueHandler accepts a multipart report with optional image and video.
func (s *Server) CreateIssueHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "create_issue"
	const method = "POST"
	ctx := r.Context()
	logger := s.logger(r)

	fail := func(status int, msg string) {
		writeError(w, status, msg)
		s.observe(endpoint, method, status, start)
	}

	client := ratelimit.ClientKey(r)
	if !s.Limiter.Allow(client) {
		fail(http.StatusTooManyRequests, msgRateLimited)
		return
	}
	if s.Redis != nil && s.Config.DailyReportLimit > 0 {
		n, err := s.Redis.IncrementDailyReports(ctx, client)
		if err != nil {
			logger.Warn("daily report quota unavailable", zap.Error(err))
		} else if n > int64(s.Config.DailyReportLimit) {
			fail(http.StatusTooManyRequests, msgDailyLimit)
			return
		}
	}

	// Two files plus form fields.
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.Config.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		fail(http.StatusBadRequest, msgBadForm)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("remove multipart temp files", zap.Error(err))
		}
	}()

	report, err := reportFromForm(r)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	var user models.User
	if u, ok := auth.UserFromContext(ctx); ok {
		user = u
		id := u.ID
		report.ReporterID = &id
	}
	if err := report.Validate(); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			fail(http.StatusBadRequest, ve.Message)
			return
		}
		fail(http.StatusBadRequest, err.Error())
		return
	}

	uploads, err := s.acceptUploads(r)
	defer func() {
		for _, u := range uploads {
			u.spool.Remove()
		}
	}()
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			fail(ue.status, ue.msg)
			return
		}
		logger.Error("accept uploads", zap.Error(err))
		fail(http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.storeUploads(ctx, uploads); err != nil {
		logger.Error("store media", zap.Error(err))
		s.deleteStored(ctx, logger, uploads)
		fail(http.StatusInternalServerError, "Failed to store uploaded media.")
		return
	}

	results := s.detect(ctx, uploads)
	best := detector.Highest(results...)
	if s.Config.DetectorRequireHazard && len(uploads) > 0 && best.Known() && !anyFound(results) {
		s.deleteStored(ctx, logger, uploads)
		fail(http.StatusUnprocessableEntity, msgNoHazard)
		return
	}
	report.Severity = best.Severity
	if !report.Severity.Valid() {
		report.Severity = models.SeverityMedium
	}

	if err := s.Store.CreateIssue(ctx, &report); err != nil {
		logger.Error("create issue", zap.Error(err))
		s.deleteStored(ctx, logger, uploads)
		fail(http.StatusInternalServerError, "internal error")
		return
	}
	for i, u := range uploads {
		ref := u.ref()
		annotated := results[i].AnnotatedURL
		if err := s.Store.AttachMedia(ctx, report.ID, u.kind, ref, annotated); err != nil {
			logger.Error("attach media", zap.Int64("issue_id", report.ID), zap.Error(err))
			s.discardIssue(ctx, logger, report.ID, uploads)
			fail(http.StatusInternalServerError, "Failed to store uploaded media.")
			return
		}
		if u.kind == models.MediaImage {
			report.Image, report.AnnotatedImage = &ref, annotated
		} else {
			report.Video, report.AnnotatedVideo = &ref, annotated
		}
		s.Metrics.IncrementMediaUploads(string(u.kind), "stored")
		s.record(r, analytics.Event{Type: analytics.EventMediaUploaded, IssueID: report.ID, UserID: user.ID,
			Category: string(report.Category), MediaKind: string(u.kind), Severity: string(report.Severity), Seconds: deref(u.seconds)})
	}

	s.Metrics.IncrementIssueReports(string(report.Category))
	s.record(r, analytics.Event{Type: analytics.EventIssueReported, IssueID: report.ID, UserID: user.ID,
		Category: string(report.Category), Status: string(report.Status), Severity: string(report.Severity)})
	s.invalidateStats(ctx, r)

	logger.Info("issue reported",
		zap.Int64("issue_id", report.ID),
		zap.String("category", string(report.Category)),
		zap.String("severity", string(report.Severity)),
		zap.Bool("has_image", report.Image != nil),
		zap.Bool("has_video", report.Video != nil))
	writeJSON(w, http.StatusCreated, s.view(report))
	s.observe(endpoint, method, http.StatusCreated, start)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func anyFound(results []detector.Result) bool {
	for _, r := range results {
		if r.Found() {
			return true
		}
	}
	return false
}

// reportFromForm reads the text fields of a report submission.
func reportFromForm(r *http.Request) (models.IssueReport, error) {
	report := models.IssueReport{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Category:    models.Category(strings.TrimSpace(r.FormValue("category"))),
		Description: strings.TrimSpace(r.FormValue("description")),
		Location:    strings.TrimSpace(r.FormValue("location")),
	}
	latRaw, lngRaw := strings.TrimSpace(r.FormValue("latitude")), strings.TrimSpace(r.FormValue("longitude"))
	if latRaw != "" || lngRaw != "" {
		lat, err1 := strconv.ParseFloat(latRaw, 64)
		lng, err2 := strconv.ParseFloat(lngRaw, 64)
		if err1 != nil || err2 != nil {
			return report, errors.New("Invalid coordinates.")
		}
		report.Latitude, report.Longitude = &lat, &lng
	}
	return report, nil
}

// acceptUploads validates the optional image and video parts and spools
// them to disk. Returned uploads must be removed by the caller even when an
// error is returned.
func (s *Server) acceptUploads(r *http.Request) ([]*upload, error) {
	var out []*upload
	for _, kind := range []models.MediaKind{models.MediaImage, models.MediaVideo} {
		file, _, err := r.FormFile(string(kind))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return out, &uploadError{status: http.StatusBadRequest, msg: msgBadForm, err: err}
		}
		u, err := s.accept(r, kind, file)
		_ = file.Close()
		if u != nil {
			out = append(out, u)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Server) accept(r *http.Request, kind models.MediaKind, file multipart.File) (*upload, error) {
	ctx := r.Context()
	mt, body, err := media.Sniff(file)
	if err != nil {
		return nil, err
	}
	if err := media.CheckKind(mt, kind); err != nil {
		s.Metrics.IncrementMediaUploads(string(kind), "invalid_type")
		return nil, &uploadError{status: http.StatusBadRequest, msg: err.Error(), err: err}
	}

	hash := sha256.New()
	spool, err := media.Spool(io.TeeReader(body, hash), s.Config.MaxUploadBytes)
	if errors.Is(err, media.ErrTooLarge) {
		s.Metrics.IncrementMediaUploads(string(kind), "too_large")
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, msg: msgTooLarge, err: err}
	}
	if err != nil {
		return nil, err
	}
	u := &upload{kind: kind, mime: mt, spool: spool, sha256: hex.EncodeToString(hash.Sum(nil))}
	if kind != models.MediaVideo {
		return u, nil
	}

	seconds, err := s.Prober.Probe(ctx, spool.Path, mt.String())
	switch {
	case errors.Is(err, media.ErrUnknownDuration):
		if s.Config.RejectUnknownDuration {
			s.Metrics.IncrementVideoRejections()
			return u, &uploadError{status: http.StatusBadRequest, msg: msgUnknownDuration, err: err}
		}
		s.logger(r).Warn("accepting video of unknown duration", zap.String("content_type", mt.String()), zap.Error(err))
	case err != nil:
		return u, err
	default:
		s.Metrics.RecordVideoDuration(seconds)
		if err := media.ValidateVideoDuration(seconds, s.Config.MaxVideoSeconds); err != nil {
			s.Metrics.IncrementVideoRejections()
			s.Metrics.IncrementMediaUploads(string(kind), "too_long")
			s.record(r, analytics.Event{Type: analytics.EventVideoRejected, MediaKind: string(kind), Seconds: seconds})
			return u, &uploadError{status: http.StatusBadRequest, msg: err.Error(), err: err}
		}
		u.seconds = &seconds
	}
	return u, nil
}

func (s *Server) storeUploads(ctx context.Context, uploads []*upload) error {
	for _, u := range uploads {
		body, err := u.spool.Reader()
		if err != nil {
			return err
		}
		key := media.NewKey(u.kind, u.mime.Extension())
		if _, err := s.Media.Save(ctx, key, u.mime.String(), body); err != nil {
			return err
		}
		u.key = key
	}
	return nil
}

// discardIssue undoes a partially created report so a retry does not
// leave a duplicate behind.
func (s *Server) discardIssue(ctx context.Context, logger *zap.Logger, id int64, uploads []*upload) {
	s.deleteStored(ctx, logger, uploads)
	if err := s.Store.DeleteIssue(ctx, id); err != nil {
		logger.Error("discard issue", zap.Int64("issue_id", id), zap.Error(err))
	}
}

func (s *Server) deleteStored(ctx context.Context, logger *zap.Logger, uploads []*upload) {
	for _, u := range uploads {
		if u.key == "" {
			continue
		}
		if err := s.Media.Delete(ctx, u.key); err != nil && !errors.Is(err, media.ErrNotFound) {
			logger.Warn("delete stored media", zap.String("key", u.key), zap.Error(err))
		}
	}
}

func (s *Server) detect(ctx context.Context, uploads []*upload) []detector.Result {
	results := make([]detector.Result, len(uploads))
	for i, u := range uploads {
		results[i] = s.Detector.Detect(ctx, detector.Request{
			Kind:          u.kind,
			MediaURL:      s.absoluteMediaURL(u.key),
			ContentSHA256: u.sha256,
		})
	}
	return results
}

// absoluteMediaURL gives the detector a URL it can fetch. Relative local
// URLs are resolved against PUBLIC_BASE_URL when it is set.
func (s *Server) absoluteMediaURL(key string) string {
	u := s.mediaURL(key)
	if strings.HasPrefix(u, "/") && s.Config.PublicBaseURL != "" {
		return strings.TrimRight(s.Config.PublicBaseURL, "/") + u
	}
	return u
}

type issueList struct {
	Issues []issueView `json:"issues"`
	Total  int         `json:"total"`
}

// MyIssuesHandler lists the caller's reports, newest first. Anonymous
// callers get an empty list.
func (s *Server) MyIssuesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "my_issues"
	const method = "GET"

	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, issueList{Issues: []issueView{}})
		s.observe(endpoint, method, http.StatusOK, start)
		return
	}
	issues, err := s.Store.AllIssues(r.Context(), models.IssueFilter{ReporterID: &u.ID})
	if err != nil {
		s.logger(r).Error("list own issues", zap.Int64("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, issueList{Issues: s.views(issues), Total: len(issues)})
	s.observe(endpoint, method, http.StatusOK, start)
}
