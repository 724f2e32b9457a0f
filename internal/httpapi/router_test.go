package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/engine"
	"github.com/roach88/selfcheckout/internal/metrics"
	"github.com/roach88/selfcheckout/internal/store"
	"github.com/roach88/selfcheckout/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testStart = time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

type apiFixture struct {
	router     *gin.Engine
	classifier *testutil.ScriptedClassifier
	metrics    *metrics.Registry
}

func newAPI(t *testing.T, opts Options) *apiFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cat := catalog.New(st)
	_, err = cat.Seed(context.Background(), []catalog.Entry{
		{Name: "Water", Price: 10000},
		{Name: "Coke", Price: 15000},
	})
	require.NoError(t, err)

	cls := testutil.NewScriptedClassifier().
		On("water", testutil.Guess("Water", 0.97, "Coke", 0.02)).
		On("coke", testutil.Guess("Coke", 0.95, "Water", 0.03)).
		On("blurry", testutil.Guess("Water", 0.40, "Coke", 0.35))
	clock := testutil.NewFixedClock(testStart)

	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	eng := engine.New(st, cls, cat, blob.NewFS(t.TempDir(), clock.Now),
		engine.WithClock(clock), engine.WithMetrics(opts.Metrics))

	return &apiFixture{router: NewRouter(eng, opts), classifier: cls, metrics: opts.Metrics}
}

func (a *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *apiFixture) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *apiFixture) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *apiFixture) createSession(t *testing.T) string {
	t.Helper()
	w := a.postJSON("/sessions", `{"device_id":"kiosk-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func (a *apiFixture) postFrame(t *testing.T, sessionID, frameID, image string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(multipartRequest(t, "/sessions/"+sessionID+"/frames",
		map[string]string{"frame_id": frameID, "device_id": "kiosk-1"},
		"image", image))
}

// multipartRequest builds a POST with the given form fields and one file
// part per image under fileField.
func multipartRequest(t *testing.T, path string, fields map[string]string, fileField string, images ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, img := range images {
		part, err := mw.CreateFormFile(fileField, "frame"+string(rune('a'+i))+".jpg")
		require.NoError(t, err)
		_, err = part.Write([]byte(img))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) jsonError {
	t.Helper()
	var e jsonError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func TestHealthz(t *testing.T) {
	a := newAPI(t, Options{})
	w := a.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := newAPI(t, Options{Ready: func(context.Context) error { return errors.New("db closed") }})
	w = down.get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", decodeError(t, w).Error)
}

func TestCreateSession(t *testing.T) {
	a := newAPI(t, Options{})

	w := a.postJSON("/sessions", `{"device_id":"kiosk-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "ACTIVE", string(resp.State))
	assert.Equal(t, "2025-11-03T09:30:00Z", resp.CreatedAt)

	w = a.get("/sessions/" + resp.SessionID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_amount":0`)
}

func TestCreateSession_BadRequests(t *testing.T) {
	a := newAPI(t, Options{})

	w := a.postJSON("/sessions", `{"device_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, w).Error)

	w = a.postJSON("/sessions", `{"device_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, w).Error)
}

func TestRequestIDPropagates(t *testing.T) {
	a := newAPI(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-42")

	w := a.do(req)
	assert.Equal(t, "req-42", w.Header().Get(headerRequestID))
}

func TestIngestFrame(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)

	w := a.postFrame(t, id, "f1", "water")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get(headerReplayed))
	assert.JSONEq(t, `{
		"frame_id": "f1",
		"added": true,
		"proposal": {"product_id": 1, "name": "Water", "price": 10000, "quantity": 1, "confidence": 0.97},
		"threshold": 0.9,
		"ts": "2025-11-03T09:30:00Z",
		"current_total": 10000
	}`, w.Body.String())
}

func TestIngestFrame_LowConfidence(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)

	w := a.postFrame(t, id, "f1", "blurry")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"frame_id": "f1",
		"added": false,
		"proposal": {
			"label": "unknown",
			"confidence": 0.4,
			"alternatives": [
				{"label": "Water", "confidence": 0.4},
				{"label": "Coke", "confidence": 0.35}
			]
		},
		"threshold": 0.9,
		"ts": "2025-11-03T09:30:00Z",
		"current_total": 0
	}`, w.Body.String())
}

func TestIngestFrame_ReplayIsByteIdentical(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)

	first := a.postFrame(t, id, "f1", "water")
	require.Equal(t, http.StatusOK, first.Code)

	// Resubmission with different bytes still replays the stored result.
	second := a.postFrame(t, id, "f1", "coke")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(headerReplayed))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), a.classifier.Calls())
}

func TestIngestFrame_Errors(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)
	other := a.createSession(t)
	require.Equal(t, http.StatusOK, a.postFrame(t, id, "taken", "water").Code)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		code   string
	}{
		{
			name: "unknown session",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/nope/frames",
					map[string]string{"frame_id": "f1", "device_id": "kiosk-1"}, "image", "water")
			},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name: "frame owned by another session",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+other+"/frames",
					map[string]string{"frame_id": "taken", "device_id": "kiosk-1"}, "image", "water")
			},
			status: http.StatusConflict,
			code:   "FRAME_CONFLICT",
		},
		{
			name: "missing frame id",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+id+"/frames",
					map[string]string{"device_id": "kiosk-1"}, "image", "water")
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name: "frame id with path separator",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+id+"/frames",
					map[string]string{"frame_id": "cam/1", "device_id": "kiosk-1"}, "image", "water")
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name: "device id with path separator",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+id+"/frames",
					map[string]string{"frame_id": "f8", "device_id": "kiosk/1"}, "image", "water")
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name: "dot-dot frame id",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+id+"/frames",
					map[string]string{"frame_id": "..", "device_id": "kiosk-1"}, "image", "water")
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name: "missing image part",
			req: func() *http.Request {
				return multipartRequest(t, "/sessions/"+id+"/frames",
					map[string]string{"frame_id": "f9", "device_id": "kiosk-1"}, "image")
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(tt.req())
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Error)
		})
	}
}

func TestIngestFrame_PayloadTooLarge(t *testing.T) {
	a := newAPI(t, Options{MaxUploadBytes: 256})
	id := a.createSession(t)

	w := a.postFrame(t, id, "f1", strings.Repeat("x", 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Error)
}

func TestIngestFrame_ClassifierUnavailable(t *testing.T) {
	a := newAPI(t, Options{})
	a.classifier.Fail("down", errors.New("connection refused"))
	id := a.createSession(t)

	w := a.postFrame(t, id, "f1", "down")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CLASSIFIER_UNAVAILABLE", decodeError(t, w).Error)

	a.classifier.Fail("slow", context.DeadlineExceeded)
	w = a.postFrame(t, id, "f2", "slow")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestCart_Golden(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)
	for i, img := range []string{"water", "coke", "water"} {
		require.Equal(t, http.StatusOK, a.postFrame(t, id, "f"+string(rune('1'+i)), img).Code)
	}

	w := a.get("/sessions/" + id + "/cart")
	require.Equal(t, http.StatusOK, w.Code)

	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, w.Body.Bytes(), "", "  "))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "cart", pretty.Bytes())
}

func TestCheckoutFlow(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)
	require.Equal(t, http.StatusOK, a.postFrame(t, id, "f1", "water").Code)
	require.Equal(t, http.StatusOK, a.postFrame(t, id, "f2", "water").Code)

	w := a.postJSON("/sessions/"+id+"/confirm", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed confirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &confirmed))
	assert.Equal(t, id, confirmed.SessionID)
	assert.NotEmpty(t, confirmed.InvoiceID)
	assert.Equal(t, int64(20000), confirmed.Total)
	assert.Equal(t, "PENDING_CHECKOUT", string(confirmed.State))
	require.Len(t, confirmed.Items, 1)
	assert.Equal(t, int64(2), confirmed.Items[0].Quantity)

	// Frames after confirmation are refused.
	w = a.postFrame(t, id, "f3", "coke")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeError(t, w).Error)

	w = a.postJSON("/sessions/"+id+"/pay", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid payResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, confirmed.InvoiceID, paid.InvoiceID)
	assert.Equal(t, int64(20000), paid.AmountPaid)
	assert.Equal(t, "PAID", string(paid.State))
	assert.Equal(t, "2025-11-03T09:30:00Z", paid.PaidAt)

	w = a.postJSON("/sessions/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeError(t, w).Error)
}

func TestCancel(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)

	w := a.postJSON("/sessions/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"session_id":"`+id+`","state":"CANCELLED","closed_at":"2025-11-03T09:30:00Z"}`, w.Body.String())

	w = a.postJSON("/sessions/"+id+"/confirm", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPay_BeforeConfirm(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)

	w := a.postJSON("/sessions/"+id+"/pay", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeError(t, w).Error)
}

func TestUnknownSessionAndRoute(t *testing.T) {
	a := newAPI(t, Options{})

	for _, path := range []string{"/sessions/nope", "/sessions/nope/cart"} {
		w := a.get(path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error, path)
	}

	w := a.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error)
}

func TestScan(t *testing.T) {
	a := newAPI(t, Options{})

	w := a.do(multipartRequest(t, "/scan", nil, "file", "coke"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"label": "Coke",
		"confidence": 0.95,
		"top1": {"label": "Coke", "confidence": 0.95},
		"top2": {"label": "Water", "confidence": 0.03},
		"threshold": 0.9
	}`, w.Body.String())
}

func TestScan3(t *testing.T) {
	a := newAPI(t, Options{})

	w := a.do(multipartRequest(t, "/scan3", nil, "files", "coke", "water", "water", "blurry"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		FinalLabel      string            `json:"final_label"`
		FinalConfidence float64           `json:"final_confidence"`
		Votes           map[string]int    `json:"votes"`
		Results         []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Water", resp.FinalLabel)
	assert.Equal(t, 0.97, resp.FinalConfidence)
	assert.Equal(t, map[string]int{"Coke": 1, "Water": 2}, resp.Votes)
	assert.Len(t, resp.Results, 3)

	w = a.do(multipartRequest(t, "/scan3", nil, "files"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPI(t, Options{})
	id := a.createSession(t)
	require.Equal(t, http.StatusOK, a.postFrame(t, id, "f1", "water").Code)

	w := a.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `checkout_frames_ingested_total{outcome="added"} 1`)
	assert.Contains(t, body, `checkout_http_requests_total{method="POST",route="/sessions",status="201"} 1`)
}

func TestCORS(t *testing.T) {
	a := newAPI(t, Options{CORSOrigins: []string{"https://kiosk.example"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://kiosk.example")
	w := a.do(req)
	assert.Equal(t, "https://kiosk.example", w.Header().Get("Access-Control-Allow-Origin"))
}
