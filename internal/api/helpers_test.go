package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/media"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
)

type testEnv struct {
	srv    *Server
	store  *db.MemoryStore
	local  *media.LocalStorage
	events *analytics.MemoryRecorder
	router http.Handler
}

func testConfig() config.Config {
	return config.Config{
		MediaBackend:     "local",
		MediaURL:         "/media/",
		MaxUploadBytes:   5 << 20,
		MaxVideoSeconds:  6,
		JWTSecret:        "test-secret",
		SessionTTL:       time.Hour,
		DetectorTimeout:  time.Second,
		DetectorCacheTTL: time.Minute,
		StatsCacheTTL:    time.Minute,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	store := db.NewMemoryStore()
	local, err := media.NewLocalStorage(t.TempDir(), cfg.MediaURL)
	require.NoError(t, err)

	srv, err := NewServer(cfg, zap.NewNop(), store, local, observability.NewNoOpRegistry())
	require.NoError(t, err)
	events := &analytics.MemoryRecorder{}
	srv.Analytics = events
	return &testEnv{srv: srv, store: store, local: local, events: events, router: srv.Router()}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// user creates an account and returns a bearer token for it.
func (e *testEnv) user(t *testing.T, username string, staff bool) (models.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: hash, IsStaff: staff}
	require.NoError(t, e.store.CreateUser(context.Background(), &u))
	tok, _, err := e.srv.Sessions.Issue(u)
	require.NoError(t, err)
	return u, tok
}

func withBearer(req *http.Request, tok string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func reportFields() map[string]string {
	return map[string]string{
		"title":       "Pothole on Main Road",
		"category":    "pothole",
		"description": "Deep hole in the left lane",
		"location":    "Soweto, Gauteng",
	}
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/issues", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "198.51.100.4:1234"
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// storedFiles counts the objects under the local media root.
func storedFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return n
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde"), make([]byte, 64)...)

// mp4Bytes builds a minimal MP4 whose movie header declares the given length.
func mp4Bytes(timescale, duration uint32) []byte {
	var b bytes.Buffer
	be := func(v any) { _ = binary.Write(&b, binary.BigEndian, v) }
	be(uint32(20))
	b.WriteString("ftypisom")
	be(uint32(512))
	b.WriteString("isom")
	be(uint32(8 + 108))
	b.WriteString("moov")
	be(uint32(108))
	b.WriteString("mvhd")
	be(uint32(0))
	be(uint32(0))
	be(uint32(0))
	be(timescale)
	be(duration)
	be(uint32(0x00010000))
	be(uint16(0x0100))
	be(uint16(0))
	b.Write(make([]byte, 8+36+24))
	be(uint32(1))
	return b.Bytes()
}
