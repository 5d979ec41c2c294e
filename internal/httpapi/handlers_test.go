package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
	"github.com/ironsheep/digit-tools-mcp/internal/recognizer"
)

func paperImage(t *testing.T) *image.Gray {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func ink(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func barImage(t *testing.T, dx int) *image.Gray {
	t.Helper()
	img := paperImage(t)
	ink(img, image.Rect(40+dx, 15, 52+dx, 85), 0)
	return img
}

func ringImage(t *testing.T, dx int) *image.Gray {
	t.Helper()
	img := paperImage(t)
	ink(img, image.Rect(20+dx, 20, 70+dx, 80), 0)
	ink(img, image.Rect(32+dx, 32, 58+dx, 68), 255)
	return img
}

// newTestServer starts an httptest server around a handle. When trained is
// set the handle serves bars labelled 1 and rings labelled 0 with k=3.
func newTestServer(t *testing.T, trained bool) *httptest.Server {
	t.Helper()
	h := recognizer.NewHandle(knn.IndexBruteForce)
	if trained {
		var ts knn.TrainingSet
		for _, dx := range []int{-10, 0, 10} {
			for _, c := range []struct {
				img   *image.Gray
				label knn.Label
			}{{barImage(t, dx), 1}, {ringImage(t, dx), 0}} {
				s, err := normalize.Normalize(c.img)
				if err != nil {
					t.Fatalf("Normalize failed: %v", err)
				}
				ts.Samples = append(ts.Samples, s)
				ts.Labels = append(ts.Labels, c.label)
			}
		}
		if _, err := h.Retrain(ts, 3, ""); err != nil {
			t.Fatalf("Retrain failed: %v", err)
		}
	}

	srv := httptest.NewServer(NewHandler(h, 0).Routes())
	t.Cleanup(srv.Close)
	return srv
}

// canonicalBytes returns the 784-byte canonical form of img.
func canonicalBytes(t *testing.T, img *image.Gray) []byte {
	t.Helper()
	canon, err := normalize.Canonical(img)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	return canon.Pix
}

// multipartImage encodes img as PNG in a multipart body under field.
func multipartImage(t *testing.T, field string, img image.Image) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "digit.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close failed: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		trained    bool
		wantStatus int
		wantLoaded bool
	}{
		{"no model", false, http.StatusServiceUnavailable, false},
		{"trained", true, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.trained)
			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var got HealthResponse
			decodeJSON(t, resp, &got)
			if got.Model.Loaded != tt.wantLoaded {
				t.Errorf("model loaded: got %v, want %v", got.Model.Loaded, tt.wantLoaded)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name  string
		img   *image.Gray
		query string
		want  knn.Label
		wantK int
	}{
		{"bar", barImage(t, 4), "", 1, 3},
		{"ring with k 1", ringImage(t, -4), "?k=1", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/predict"+tt.query, "application/octet-stream",
				bytes.NewReader(canonicalBytes(t, tt.img)))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status: got %d, want 200", resp.StatusCode)
			}
			var got PredictResponse
			decodeJSON(t, resp, &got)
			if got.Label != tt.want {
				t.Errorf("label: got %d, want %d", got.Label, tt.want)
			}
			if got.K != tt.wantK || len(got.Neighbors) != tt.wantK {
				t.Errorf("k: got %d with %d neighbors, want %d", got.K, len(got.Neighbors), tt.wantK)
			}
			if got.Confidence < 0 || got.Confidence > 100 {
				t.Errorf("confidence %v outside [0, 100]", got.Confidence)
			}
		})
	}
}

func TestPredictErrors(t *testing.T) {
	trained := newTestServer(t, true)
	empty := newTestServer(t, false)
	good := canonicalBytes(t, barImage(t, 0))

	tests := []struct {
		name       string
		srv        *httptest.Server
		method     string
		query      string
		body       []byte
		wantStatus int
	}{
		{"short body", trained, http.MethodPost, "", make([]byte, 100), http.StatusBadRequest},
		{"long body", trained, http.MethodPost, "", make([]byte, knn.SampleSize+1), http.StatusBadRequest},
		{"bad k", trained, http.MethodPost, "?k=zero", good, http.StatusBadRequest},
		{"k above count", trained, http.MethodPost, "?k=7", good, http.StatusBadRequest},
		{"no model", empty, http.MethodPost, "", good, http.StatusServiceUnavailable},
		{"wrong method", trained, http.MethodGet, "", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.srv.URL+"/predict"+tt.query, bytes.NewReader(tt.body))
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var got ErrorResponse
			decodeJSON(t, resp, &got)
			if got.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestPredictFromImage(t *testing.T) {
	srv := newTestServer(t, true)

	body, contentType := multipartImage(t, "image", ringImage(t, 6))
	resp, err := http.Post(srv.URL+"/predict/image", contentType, body)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var got PredictResponse
	decodeJSON(t, resp, &got)
	if got.Label != 0 {
		t.Errorf("label: got %d, want 0", got.Label)
	}
}

func TestPredictFromImageErrors(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name       string
		field      string
		img        image.Image
		wantStatus int
	}{
		{"blank page", "image", paperImage(t), http.StatusUnprocessableEntity},
		{"wrong field", "file", barImage(t, 0), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartImage(t, tt.field, tt.img)
			resp, err := http.Post(srv.URL+"/predict/image", contentType, body)
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var got ErrorResponse
			decodeJSON(t, resp, &got)
			if got.Error == "" {
				t.Error("error message is empty")
			}
		})
	}

	t.Run("not an image", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("image", "notes.txt")
		part.Write([]byte("definitely not a picture"))
		mw.Close()

		resp, err := http.Post(srv.URL+"/predict/image", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", resp.StatusCode)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, false)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/predict", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: got %q, want *", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{normalize.ErrNoDigitDetected, http.StatusUnprocessableEntity},
		{knn.ErrInvalidParameter, http.StatusBadRequest},
		{knn.ErrEmptyModel, http.StatusServiceUnavailable},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
