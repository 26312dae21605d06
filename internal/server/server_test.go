package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/analyzer"
	"github.com/truthguard/truthguard/internal/config"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	texts    []string
	uploads  [][]byte
	block    chan struct{}
	started  chan struct{}
	imageRes analysis.Result
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, text string) analysis.Result {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}
	return analysis.Result{
		Modality:     analysis.ModalityText,
		Verdict:      analysis.VerdictLikelyAuthentic,
		Probability:  0.734,
		ModelSignals: map[string]float64{},
	}
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, data []byte) analysis.Result {
	f.mu.Lock()
	f.uploads = append(f.uploads, data)
	f.mu.Unlock()
	return f.imageRes
}

func (f *fakeAnalyzer) AnalyzeVideo(ctx context.Context, data []byte) analysis.Result {
	f.mu.Lock()
	f.uploads = append(f.uploads, data)
	f.mu.Unlock()
	return analysis.ErrorResult(analysis.ModalityVideo,
		analysis.Concern("Invalid or unsupported video file", analysis.SourceVideoDecoder))
}

func (f *fakeAnalyzer) Status() analyzer.Status {
	return analyzer.Status{TextOracle: "disabled", ImageOracle: "onnx", ForensicMode: "gradient", WeightTables: "v1"}
}

func newTestConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:                ":0",
		MaxRequestBodyBytes: 1 << 20,
		MaxTextChars:        50,
		MaxInFlightRequests: 4,
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, a Analyzer) *Server {
	t.Helper()
	return New(cfg, a)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %s", rr.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}

func multipartUpload(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	} else {
		_ = mw.WriteField("other", "value")
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeText(t *testing.T) {
	fa := &fakeAnalyzer{}
	s := newTestServer(t, newTestConfig(), fa)

	rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"hello world"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["confidence"] != float64(73) {
		t.Fatalf("confidence = %v, want 73", body["confidence"])
	}
	if body["verdict"] != string(analysis.VerdictLikelyAuthentic) {
		t.Fatalf("verdict = %v", body["verdict"])
	}
	if len(fa.texts) != 1 || fa.texts[0] != "hello world" {
		t.Fatalf("analyzer saw %v", fa.texts)
	}
}

func TestAnalyzeTextRequestErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", `{"text":`, http.StatusBadRequest, codeInvalidJSON},
		{"missing field", `{"content":"x"}`, http.StatusBadRequest, codeValidation},
		{"too long", `{"text":"` + strings.Repeat("a", 51) + `"}`, http.StatusRequestEntityTooLarge, codeTextTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fa := &fakeAnalyzer{}
			s := newTestServer(t, newTestConfig(), fa)
			rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(tc.body)))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if got := errorCode(t, rr); got != tc.code {
				t.Fatalf("code = %q, want %q", got, tc.code)
			}
			if len(fa.texts) != 0 {
				t.Fatal("analyzer must not run for rejected requests")
			}
		})
	}
}

func TestEmptyTextReachesAnalyzer(t *testing.T) {
	fa := &fakeAnalyzer{}
	s := newTestServer(t, newTestConfig(), fa)

	rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":""}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(fa.texts) != 1 || fa.texts[0] != "" {
		t.Fatalf("analyzer saw %v", fa.texts)
	}
}

func TestRequestBodyLimitReturns413(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxRequestBodyBytes = 10
	s := newTestServer(t, cfg, &fakeAnalyzer{})

	rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"`+strings.Repeat("a", 32)+`"}`)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if got := errorCode(t, rr); got != codeTooLarge {
		t.Fatalf("code = %q", got)
	}
}

func TestAnalyzeImageAddsFilename(t *testing.T) {
	fa := &fakeAnalyzer{imageRes: analysis.Result{
		Modality:     analysis.ModalityImage,
		Verdict:      analysis.VerdictLikelyManipulated,
		Probability:  0.66,
		ModelSignals: map[string]float64{"forensic_score": 0.4},
	}}
	s := newTestServer(t, newTestConfig(), fa)

	rr := do(t, s, multipartUpload(t, "/analyze/image", "file", "cat.png", []byte("pngbytes")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["filename"] != "cat.png" {
		t.Fatalf("filename = %v", body["filename"])
	}
	if body["ai_generated_probability"] != 0.66 {
		t.Fatalf("probability = %v", body["ai_generated_probability"])
	}
	if len(fa.uploads) != 1 || string(fa.uploads[0]) != "pngbytes" {
		t.Fatalf("analyzer saw %q", fa.uploads)
	}
}

func TestAnalyzeVideoErrorVerdictIs200(t *testing.T) {
	s := newTestServer(t, newTestConfig(), &fakeAnalyzer{})

	rr := do(t, s, multipartUpload(t, "/analyze/video", "file", "clip.mp4", []byte("junk")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["verdict"] != string(analysis.VerdictError) || body["deepfake_probability"] != float64(0) {
		t.Fatalf("unexpected body %v", body)
	}
	if body["filename"] != "clip.mp4" {
		t.Fatalf("filename = %v", body["filename"])
	}
}

func TestUploadMissingFile(t *testing.T) {
	fa := &fakeAnalyzer{}
	s := newTestServer(t, newTestConfig(), fa)

	for _, req := range []*http.Request{
		multipartUpload(t, "/analyze/image", "", "", nil),
		httptest.NewRequest(http.MethodPost, "/analyze/video", strings.NewReader("raw")),
	} {
		rr := do(t, s, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if got := errorCode(t, rr); got != codeMissingFile {
			t.Fatalf("code = %q", got)
		}
	}
	if len(fa.uploads) != 0 {
		t.Fatal("analyzer must not run without a file")
	}
}

func TestInFlightLimitReturns429(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxInFlightRequests = 1
	fa := &fakeAnalyzer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := newTestServer(t, cfg, fa)

	done := make(chan int, 1)
	go func() {
		rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"first"}`)))
		done <- rr.Code
	}()

	select {
	case <-fa.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never started")
	}

	rr := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"second"}`)))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := errorCode(t, rr); got != codeBusy {
		t.Fatalf("code = %q", got)
	}

	close(fa.block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first request got %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimitPerMinute = 1
	s := newTestServer(t, cfg, &fakeAnalyzer{})

	first := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"a"}`)))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"b"}`)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}

func TestReadyzReportsStatusAndDrains(t *testing.T) {
	s := newTestServer(t, newTestConfig(), &fakeAnalyzer{})

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["image_oracle"] != "onnx" || body["weight_tables"] != "v1" {
		t.Fatalf("unexpected status %v", body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	rr = do(t, s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", rr.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t, newTestConfig(), &fakeAnalyzer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rr := do(t, s, req)
	if got := rr.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("X-Request-ID = %q", got)
	}

	rr = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, newTestConfig(), &fakeAnalyzer{})
	_ = do(t, s, httptest.NewRequest(http.MethodPost, "/analyze/text", strings.NewReader(`{"text":"x"}`)))

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "truthguard_http_requests_total") {
		t.Fatal("expected truthguard_http_requests_total in /metrics output")
	}
}
