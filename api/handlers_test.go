package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/annotator"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type server struct {
	http.Handler
	handler  *Handler
	spoolDir string
	seen     []float32
}

func newServer(t *testing.T, detErr error) *server {
	t.Helper()
	s := &server{}
	s.build(t, inference.DetectorFunc(func(_ context.Context, _ *gocv.Mat, conf float32) ([]inference.Detection, error) {
		s.seen = append(s.seen, conf)
		if detErr != nil {
			return nil, detErr
		}
		return []inference.Detection{{ClassID: 1, Box: image.Rect(4, 4, 20, 20), Score: 0.9}}, nil
	}))
	return s
}

func (s *server) build(t *testing.T, det inference.Detector) {
	t.Helper()
	s.spoolDir = t.TempDir()
	a := annotator.New(det, models.MiningClasses, annotator.DefaultOptions(), zap.NewNop())
	cfg := pipeline.DefaultConfig()
	cfg.SpoolDir = s.spoolDir
	p := pipeline.New(cfg, models.MiningClasses, a, zap.NewNop())

	s.handler = NewHandler(p, Config{MaxImageBytes: 1 << 20, MaxVideoBytes: 8 << 20}, zap.NewNop())
	s.Handler = NewRouter(s.handler, zap.NewNop())
}

func upload(t *testing.T, target, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), height, width, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	return bytes.Clone(buf.GetBytes())
}

func aviBytes(t *testing.T, frames int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")
	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < frames; i++ {
		require.NoError(t, w.Write(frame))
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestDetectImage(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, upload(t, "/detect/image/Dumper%20truck?conf=0.4", "file", "photo.png", pngBytes(t, 64, 48)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, []float32{0.4}, s.seen)

	out, err := gocv.IMDecode(rec.Body.Bytes(), gocv.IMReadColor)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, 64, out.Cols())
	assert.Equal(t, 48, out.Rows())
}

func TestDetectImage_DefaultConfidenceAndEncodedSeparator(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, upload(t, "/detect/image/car%2CExcavator", "file", "photo.jpeg", pngBytes(t, 32, 32)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []float32{DefaultConfidence}, s.seen)
}

func TestDetectImage_ClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		field    string
		filename string
		data     []byte
		contains string
	}{
		{
			name:     "unknown class",
			target:   "/detect/image/bogus",
			field:    "file",
			filename: "photo.png",
			contains: "Invalid class(es): bogus. Choices: Blast rig, Dumper truck, Excavator, car",
		},
		{
			name:     "unsupported extension",
			target:   "/detect/image/car",
			field:    "file",
			filename: "photo.gif",
			contains: "unsupported media type",
		},
		{
			name:     "corrupt image",
			target:   "/detect/image/car",
			field:    "file",
			filename: "photo.jpg",
			data:     []byte("not a jpeg"),
			contains: "image could not be decoded",
		},
		{
			name:     "confidence not a number",
			target:   "/detect/image/car?conf=high",
			field:    "file",
			filename: "photo.png",
			contains: "confidence must be between 0 and 1",
		},
		{
			name:     "confidence out of range",
			target:   "/detect/image/car?conf=1.2",
			field:    "file",
			filename: "photo.png",
			contains: "confidence must be between 0 and 1",
		},
		{
			name:     "missing file part",
			target:   "/detect/image/car",
			field:    "upload",
			filename: "photo.png",
			contains: "missing file part",
		},
		{
			name:     "oversized upload",
			target:   "/detect/image/car",
			field:    "file",
			filename: "photo.png",
			data:     make([]byte, 3<<20),
			contains: "upload exceeds size limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, nil)
			data := tt.data
			if data == nil {
				data = pngBytes(t, 16, 16)
			}
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, upload(t, tt.target, tt.field, tt.filename, data))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tt.contains)
			assert.Empty(t, s.seen)
		})
	}
}

func TestDetect_NotMultipart(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/detect/image/car", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "image/png")
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "multipart")
}

func TestDetectImage_DetectorFailure(t *testing.T) {
	s := newServer(t, errors.New("cuda out of memory"))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, upload(t, "/detect/image/car", "file", "photo.png", pngBytes(t, 16, 16)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := errorMessage(t, rec)
	assert.NotContains(t, msg, "cuda")
}

func TestDetectVideo(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, upload(t, "/detect/video/Dumper+truck", "file", "clip.avi", aviBytes(t, 4)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))
	assert.Len(t, s.seen, 4)

	des, err := os.ReadDir(s.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, des)
}

func TestDetectVideo_RejectsBeforeSpooling(t *testing.T) {
	s := newServer(t, nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, upload(t, "/detect/video/bogus", "file", "clip.avi", aviBytes(t, 2)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	des, err := os.ReadDir(s.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, des)
}

// abortingWriter fails once the response body starts.
type abortingWriter struct {
	*httptest.ResponseRecorder
}

func (a abortingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestDetectVideo_AbortedResponseRemovesSpools(t *testing.T) {
	s := newServer(t, nil)
	rec := abortingWriter{httptest.NewRecorder()}

	s.ServeHTTP(rec, upload(t, "/detect/video/Dumper+truck", "file", "clip.avi", aviBytes(t, 3)))

	assert.Equal(t, http.StatusOK, rec.Code)
	des, err := os.ReadDir(s.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, des)
}

func TestDrain_WaitsForCancelledVideo(t *testing.T) {
	started := make(chan struct{}, 1)
	s := &server{}
	s.build(t, inference.DetectorFunc(func(ctx context.Context, _ *gocv.Mat, _ float32) ([]inference.Detection, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := httptest.NewRecorder()
	req := upload(t, "/detect/video/Dumper+truck", "file", "clip.avi", aviBytes(t, 3)).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeHTTP(rec, req)
	}()
	<-started

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, s.handler.Drain(short), context.DeadlineExceeded)

	// Cancelling the request unwinds the frame loop and the spools go with it.
	cancel()
	require.NoError(t, s.handler.Drain(context.Background()))
	<-done

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	des, err := os.ReadDir(s.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, des)
}

func TestClassesHealthAndMetrics(t *testing.T) {
	s := newServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/classes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Classes []struct {
			ID    int    `json:"id"`
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Classes, 4)
	assert.Equal(t, "Excavator", body.Classes[2].Name)
	assert.Equal(t, "#008000", body.Classes[2].Color)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "detect_requests_total")
}
