// Package httpapi serves digit recognition over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/ironsheep/digit-tools-mcp/internal/imaging"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
	"github.com/ironsheep/digit-tools-mcp/internal/recognizer"
)

// maxUpload bounds multipart image uploads.
const maxUpload = 10 << 20

// Handler answers prediction requests with the model held by a recognizer.Handle.
type Handler struct {
	handle *recognizer.Handle
	k      int
}

// NewHandler returns a Handler that votes with k neighbors unless a request
// overrides it. A k of zero selects the model default.
func NewHandler(handle *recognizer.Handle, k int) *Handler {
	return &Handler{handle: handle, k: k}
}

// PredictResponse is the JSON body of a successful prediction.
type PredictResponse struct {
	Label      knn.Label      `json:"label"`
	Confidence float64        `json:"confidence"`
	K          int            `json:"k"`
	Neighbors  []knn.Neighbor `json:"neighbors"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service status and the loaded model.
type HealthResponse struct {
	Status string          `json:"status"`
	Model  recognizer.Info `json:"model"`
}

// Routes registers the endpoints on a new mux, each with CORS headers.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(h.Health))
	mux.HandleFunc("/predict", enableCORS(h.Predict))
	mux.HandleFunc("/predict/image", enableCORS(h.PredictFromImage))
	return mux
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Health reports whether a model is loaded. It answers 503 until one is.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	info := h.handle.Info()
	resp := HealthResponse{Status: "healthy", Model: info}
	status := http.StatusOK
	if !info.Loaded {
		resp.Status = "no model loaded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Predict classifies a canonical digit sent as 784 raw bytes, row-major,
// foreground high.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	k, err := h.queryK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, knn.SampleSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) != knn.SampleSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("expected %d bytes, got %d", knn.SampleSize, len(body)))
		return
	}

	res, err := h.handle.ClassifySample(knn.SampleFromPixels(body), k)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// PredictFromImage runs the full pipeline on an uploaded picture sent as the
// multipart field "image".
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	k, err := h.queryK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image file provided, use 'image' as the form field name")
		return
	}
	defer file.Close()

	gray, _, err := imaging.DecodeGray(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image format")
		return
	}

	res, err := h.handle.Recognize(gray, k)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// queryK reads the optional k query parameter.
func (h *Handler) queryK(r *http.Request) (int, error) {
	v := r.URL.Query().Get("k")
	if v == "" {
		return h.k, nil
	}
	k, err := strconv.Atoi(v)
	if err != nil || k < 1 {
		return 0, fmt.Errorf("k must be a positive integer, got %q", v)
	}
	return k, nil
}

// fail maps recognition errors onto HTTP status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Prediction error: %v", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, normalize.ErrNoDigitDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, knn.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, knn.ErrEmptyModel):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(res knn.Result) PredictResponse {
	return PredictResponse{
		Label:      res.Label,
		Confidence: res.Confidence,
		K:          len(res.Neighbors),
		Neighbors:  res.Neighbors,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
