package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/digit-tools-mcp/internal/corpus"
	"github.com/ironsheep/digit-tools-mcp/internal/imaging"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
)

// paperImage creates a white picture of the given size.
func paperImage(t *testing.T, width, height int) *image.Gray {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
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

// barImage draws a vertical stroke, shifted by dx.
func barImage(t *testing.T, dx int) *image.Gray {
	t.Helper()
	img := paperImage(t, 100, 100)
	ink(img, image.Rect(40+dx, 15, 52+dx, 85), 0)
	return img
}

// ringImage draws a thick square outline, shifted by dx.
func ringImage(t *testing.T, dx int) *image.Gray {
	t.Helper()
	img := paperImage(t, 100, 100)
	ink(img, image.Rect(20+dx, 20, 70+dx, 80), 0)
	ink(img, image.Rect(32+dx, 32, 58+dx, 68), 255)
	return img
}

// shapes returns bars labelled 1 and rings labelled 0.
func shapes(t *testing.T, shifts ...int) ([]*image.Gray, []knn.Label) {
	t.Helper()
	var imgs []*image.Gray
	var labels []knn.Label
	for _, dx := range shifts {
		imgs = append(imgs, barImage(t, dx), ringImage(t, dx))
		labels = append(labels, 1, 0)
	}
	return imgs, labels
}

// writeImageFile encodes img as PNG in dir and returns its path.
func writeImageFile(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// writeCorpus stores the canonical shapes as IDX archives and returns their paths.
func writeCorpus(t *testing.T, dir string, shifts ...int) (string, string) {
	t.Helper()
	imgs, labels := shapes(t, shifts...)
	var canon []*image.Gray
	for _, img := range imgs {
		c, err := normalize.Canonical(img)
		if err != nil {
			t.Fatalf("Canonical failed: %v", err)
		}
		canon = append(canon, c)
	}
	set, err := corpus.NewImageSet(canon)
	if err != nil {
		t.Fatalf("NewImageSet failed: %v", err)
	}

	imagesPath := filepath.Join(dir, "images.idx")
	labelsPath := filepath.Join(dir, "labels.idx")
	if err := corpus.WriteArchives(imagesPath, labelsPath, set, labels); err != nil {
		t.Fatalf("WriteArchives failed: %v", err)
	}
	return imagesPath, labelsPath
}

// trainedServer returns a server whose model holds six shapes and defaults to k=3.
func trainedServer(t *testing.T) *Server {
	t.Helper()
	s := newTestServer(t)
	imgs, labels := shapes(t, -10, 0, 10)
	var ts knn.TrainingSet
	for _, img := range imgs {
		sample, err := normalize.Normalize(img)
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		ts.Samples = append(ts.Samples, sample)
	}
	ts.Labels = labels
	if _, err := s.handle.Retrain(ts, 3, ""); err != nil {
		t.Fatalf("Retrain failed: %v", err)
	}
	return s
}

// callTool sends a tools/call request through handleRequest.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unpacks the JSON text content of a successful tool response.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("failed to decode tool result %q: %v", text, err)
	}
}

func expectToolError(t *testing.T, resp *MCPResponse) {
	t.Helper()
	if resp.Error == nil {
		t.Fatal("Expected error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
}

type recognizeReply struct {
	Detected   bool           `json:"detected"`
	Message    string         `json:"message"`
	K          int            `json:"k"`
	Label      int            `json:"label"`
	Confidence *float64       `json:"confidence"`
	Neighbors  []knn.Neighbor `json:"neighbors"`
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := newTestServer(t)
	path := writeImageFile(t, t.TempDir(), "load.png", paperImage(t, 100, 80))

	var info struct {
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Format    string `json:"format"`
		Grayscale bool   `json:"grayscale"`
	}
	decodeResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": path}), &info)

	if info.Width != 100 || info.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", info.Width, info.Height)
	}
	if info.Format != "png" || !info.Grayscale {
		t.Errorf("format: got %s grayscale=%v, want png grayscale", info.Format, info.Grayscale)
	}
}

func TestHandleToolsCall_ImageLoadRereadsFile(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	path := writeImageFile(t, dir, "edit.png", paperImage(t, 100, 80))

	type dims struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	var got dims
	decodeResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": path}), &got)

	writeImageFile(t, dir, "edit.png", paperImage(t, 60, 40))
	decodeResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": path}), &got)
	if got.Width != 100 || got.Height != 80 {
		t.Errorf("cached dimensions: got %dx%d, want 100x80", got.Width, got.Height)
	}

	decodeResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": path}), &got)
	if got.Width != 60 || got.Height != 40 {
		t.Errorf("reloaded dimensions: got %dx%d, want 60x40", got.Width, got.Height)
	}

	var info struct {
		CachedImages int `json:"cached_images"`
	}
	decodeResult(t, callTool(t, s, "digit_model_info", nil), &info)
	if info.CachedImages != 1 {
		t.Errorf("cached images: got %d, want 1", info.CachedImages)
	}
}

func TestHandleToolsCall_ImageDimensions(t *testing.T) {
	s := newTestServer(t)
	path := writeImageFile(t, t.TempDir(), "dims.png", paperImage(t, 200, 150))

	var dims struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	decodeResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": path}), &dims)

	if dims.Width != 200 || dims.Height != 150 {
		t.Errorf("dimensions: got %dx%d, want 200x150", dims.Width, dims.Height)
	}
}

func TestHandleToolsCall_DigitRecognize(t *testing.T) {
	s := trainedServer(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		img  *image.Gray
		k    int
		want int
	}{
		{"bar with model k", barImage(t, 5), 0, 1},
		{"ring with k 1", ringImage(t, -5), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeImageFile(t, dir, tt.name+".png", tt.img)
			args := map[string]interface{}{"path": path}
			if tt.k > 0 {
				args["k"] = tt.k
			}

			var got recognizeReply
			decodeResult(t, callTool(t, s, "digit_recognize", args), &got)

			if !got.Detected {
				t.Fatal("detected should be true")
			}
			if got.Label != tt.want {
				t.Errorf("label: got %d, want %d", got.Label, tt.want)
			}
			wantK := tt.k
			if wantK == 0 {
				wantK = 3
			}
			if got.K != wantK || len(got.Neighbors) != wantK {
				t.Errorf("k: got %d with %d neighbors, want %d", got.K, len(got.Neighbors), wantK)
			}
			if got.Confidence == nil || *got.Confidence < 0 || *got.Confidence > 100 {
				t.Errorf("confidence: got %v, want a value in [0, 100]", got.Confidence)
			}
		})
	}
}

func TestHandleToolsCall_DigitRecognizeRegion(t *testing.T) {
	s := trainedServer(t)

	// A bar in the right half, with a smudge in the left half.
	img := paperImage(t, 200, 100)
	ink(img, image.Rect(140, 15, 152, 85), 0)
	ink(img, image.Rect(10, 10, 60, 60), 0)
	path := writeImageFile(t, t.TempDir(), "region.png", img)

	args := map[string]interface{}{
		"path":   path,
		"region": map[string]int{"x1": 100, "y1": 0, "x2": 200, "y2": 100},
	}
	var got recognizeReply
	decodeResult(t, callTool(t, s, "digit_recognize", args), &got)
	if !got.Detected || got.Label != 1 {
		t.Errorf("got detected=%v label=%d, want the bar", got.Detected, got.Label)
	}

	args["region"] = map[string]int{"x1": 100, "y1": 0, "x2": 300, "y2": 100}
	expectToolError(t, callTool(t, s, "digit_recognize", args))
}

func TestHandleToolsCall_DigitRecognizeNoDigit(t *testing.T) {
	s := trainedServer(t)
	path := writeImageFile(t, t.TempDir(), "blank.png", paperImage(t, 64, 64))

	var got recognizeReply
	decodeResult(t, callTool(t, s, "digit_recognize", map[string]interface{}{"path": path}), &got)

	if got.Detected {
		t.Error("detected should be false for a blank page")
	}
	if got.Message != "could not detect a digit" {
		t.Errorf("message: got %q", got.Message)
	}
}

func TestHandleToolsCall_DigitRecognizeErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeImageFile(t, dir, "bar.png", barImage(t, 0))

	tests := []struct {
		name string
		s    *Server
		args map[string]interface{}
	}{
		{"no model", newTestServer(t), map[string]interface{}{"path": path}},
		{"k above sample count", trainedServer(t), map[string]interface{}{"path": path, "k": 7}},
		{"missing file", trainedServer(t), map[string]interface{}{"path": filepath.Join(dir, "missing.png")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectToolError(t, callTool(t, tt.s, "digit_recognize", tt.args))
		})
	}
}

func TestHandleToolsCall_DigitNormalize(t *testing.T) {
	s := newTestServer(t)
	path := writeImageFile(t, t.TempDir(), "ring.png", ringImage(t, 0))

	var got struct {
		Detected         bool `json:"detected"`
		Inverted         bool `json:"inverted"`
		Area             int  `json:"area"`
		ForegroundPixels int  `json:"foreground_pixels"`
		Region           *struct {
			X1 int `json:"x1"`
			X2 int `json:"x2"`
		} `json:"region"`
		Preview *struct {
			Width       int    `json:"width"`
			Height      int    `json:"height"`
			ImageBase64 string `json:"image_base64"`
			MimeType    string `json:"mime_type"`
		} `json:"preview"`
	}
	decodeResult(t, callTool(t, s, "digit_normalize", map[string]interface{}{"path": path}), &got)

	if !got.Detected || got.Inverted {
		t.Errorf("got detected=%v inverted=%v, want detected dark-on-light", got.Detected, got.Inverted)
	}
	if got.Area <= 0 || got.ForegroundPixels <= 0 {
		t.Errorf("area %d, foreground pixels %d; want both positive", got.Area, got.ForegroundPixels)
	}
	if got.Region == nil || got.Region.X2 <= got.Region.X1 {
		t.Errorf("region: got %+v", got.Region)
	}
	if got.Preview == nil {
		t.Fatal("preview missing")
	}
	if got.Preview.Width != 28*defaultPreviewScale || got.Preview.Height != 28*defaultPreviewScale {
		t.Errorf("preview size: got %dx%d", got.Preview.Width, got.Preview.Height)
	}
	if got.Preview.MimeType != "image/png" || got.Preview.ImageBase64 == "" {
		t.Errorf("preview encoding: got %q with %d bytes", got.Preview.MimeType, len(got.Preview.ImageBase64))
	}
}

func TestHandleToolsCall_DigitNormalizeScaleRange(t *testing.T) {
	s := newTestServer(t)
	path := writeImageFile(t, t.TempDir(), "ring.png", ringImage(t, 0))

	for _, scale := range []int{-1, imaging.MaxPreviewScale + 1, 100000} {
		t.Run(fmt.Sprintf("scale %d", scale), func(t *testing.T) {
			expectToolError(t, callTool(t, s, "digit_normalize", map[string]interface{}{"path": path, "scale": scale}))
		})
	}
}

func TestHandleToolsCall_DigitModelInfo(t *testing.T) {
	var info struct {
		Loaded   bool   `json:"loaded"`
		Samples  int    `json:"samples"`
		DefaultK int    `json:"default_k"`
		Index    string `json:"index"`
	}
	decodeResult(t, callTool(t, newTestServer(t), "digit_model_info", nil), &info)
	if info.Loaded || info.Samples != 0 {
		t.Errorf("empty server info: got %+v", info)
	}

	decodeResult(t, callTool(t, trainedServer(t), "digit_model_info", map[string]interface{}{}), &info)
	if !info.Loaded || info.Samples != 6 || info.DefaultK != 3 || info.Index != "brute" {
		t.Errorf("trained server info: got %+v", info)
	}
}

func TestHandleToolsCall_DigitTrain(t *testing.T) {
	dir := t.TempDir()
	images, labels := writeCorpus(t, dir, -8, 8)
	modelPath := filepath.Join(dir, "model.db")

	s := newTestServer(t)
	s.opts.ModelPath = modelPath

	var info struct {
		Loaded    bool   `json:"loaded"`
		Samples   int    `json:"samples"`
		DefaultK  int    `json:"default_k"`
		ModelPath string `json:"model_path"`
	}
	args := map[string]interface{}{"images": images, "labels": labels}
	decodeResult(t, callTool(t, s, "digit_train", args), &info)

	if !info.Loaded || info.Samples != 4 || info.DefaultK != 3 {
		t.Errorf("train result: got %+v", info)
	}
	if info.ModelPath != modelPath {
		t.Errorf("model path: got %s, want %s", info.ModelPath, modelPath)
	}
	if _, err := os.Stat(modelPath); err != nil {
		t.Errorf("model file not written: %v", err)
	}

	// A failed retrain leaves the served model alone.
	bad := map[string]interface{}{"images": images, "labels": filepath.Join(dir, "missing.idx")}
	expectToolError(t, callTool(t, s, "digit_train", bad))
	if got := s.handle.Info().Samples; got != 4 {
		t.Errorf("samples after failed retrain: got %d, want 4", got)
	}
}

func TestHandleToolsCall_DigitTrainNoSave(t *testing.T) {
	dir := t.TempDir()
	images, labels := writeCorpus(t, dir, 0)
	modelPath := filepath.Join(dir, "model.db")

	s := newTestServer(t)
	s.opts.ModelPath = modelPath

	args := map[string]interface{}{"images": images, "labels": labels, "default_k": 1, "no_save": true}
	var info struct {
		Samples  int `json:"samples"`
		DefaultK int `json:"default_k"`
	}
	decodeResult(t, callTool(t, s, "digit_train", args), &info)

	if info.Samples != 2 || info.DefaultK != 1 {
		t.Errorf("train result: got %+v", info)
	}
	if _, err := os.Stat(modelPath); !os.IsNotExist(err) {
		t.Errorf("model file should not exist, stat error: %v", err)
	}
}

func TestHandleToolsCall_DigitEvaluate(t *testing.T) {
	dir := t.TempDir()
	images, labels := writeCorpus(t, dir, -8, 8)

	expectToolError(t, callTool(t, newTestServer(t), "digit_evaluate",
		map[string]interface{}{"images": images, "labels": labels}))

	s := trainedServer(t)
	var got struct {
		Reports []struct {
			K        int     `json:"k"`
			Correct  int     `json:"correct"`
			Total    int     `json:"total"`
			Accuracy float64 `json:"accuracy"`
		} `json:"reports"`
		BestK int `json:"best_k"`
	}
	args := map[string]interface{}{"images": images, "labels": labels, "ks": []int{3, 1}}
	decodeResult(t, callTool(t, s, "digit_evaluate", args), &got)

	if len(got.Reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(got.Reports))
	}
	if got.Reports[0].K != 1 || got.Reports[1].K != 3 {
		t.Errorf("report order: got k=%d,%d, want 1,3", got.Reports[0].K, got.Reports[1].K)
	}
	for _, r := range got.Reports {
		if r.Total != 4 || r.Correct > r.Total {
			t.Errorf("k=%d: %d of %d correct", r.K, r.Correct, r.Total)
		}
	}
	if got.BestK != 1 && got.BestK != 3 {
		t.Errorf("best_k: got %d", got.BestK)
	}

	args["ks"] = []int{99}
	expectToolError(t, callTool(t, s, "digit_evaluate", args))
}

func TestHandleToolsCall_DigitCorpusSample(t *testing.T) {
	s := newTestServer(t)
	images, labels := writeCorpus(t, t.TempDir(), 0)

	var got struct {
		Index   int  `json:"index"`
		Count   int  `json:"count"`
		Width   int  `json:"width"`
		Height  int  `json:"height"`
		Label   *int `json:"label"`
		Preview *struct {
			Width    int    `json:"width"`
			MimeType string `json:"mime_type"`
		} `json:"preview"`
	}
	args := map[string]interface{}{"images": images, "labels": labels, "index": 1, "scale": 2}
	decodeResult(t, callTool(t, s, "digit_corpus_sample", args), &got)

	if got.Index != 1 || got.Count != 2 || got.Width != 28 || got.Height != 28 {
		t.Errorf("sample header: got %+v", got)
	}
	if got.Label == nil || *got.Label != 0 {
		t.Errorf("label: got %v, want 0", got.Label)
	}
	if got.Preview == nil || got.Preview.Width != 56 || got.Preview.MimeType != "image/png" {
		t.Errorf("preview: got %+v", got.Preview)
	}

	got.Label = nil
	decodeResult(t, callTool(t, s, "digit_corpus_sample", map[string]interface{}{"images": images, "index": 0}), &got)
	if got.Label != nil {
		t.Errorf("label without label archive: got %d", *got.Label)
	}
	if got.Preview == nil || got.Preview.Width != 28*defaultPreviewScale {
		t.Errorf("default preview: got %+v", got.Preview)
	}
}

func TestHandleToolsCall_DigitCorpusSampleErrors(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	images, _ := writeCorpus(t, dir, 0)
	picture := writeImageFile(t, dir, "bar.png", barImage(t, 0))

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"index past end", map[string]interface{}{"images": images, "index": 2}},
		{"negative index", map[string]interface{}{"images": images, "index": -1}},
		{"scale too large", map[string]interface{}{"images": images, "index": 0, "scale": 1000}},
		{"not an archive", map[string]interface{}{"images": picture, "index": 0}},
		{"bad labels", map[string]interface{}{"images": images, "labels": picture, "index": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectToolError(t, callTool(t, s, "digit_corpus_sample", tt.args))
		})
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	resp := callTool(t, newTestServer(t), "image_ocr_full", map[string]interface{}{})
	expectToolError(t, resp)
	if resp.Error.Data != "unknown tool: image_ocr_full" {
		t.Errorf("Error data: got %v", resp.Error.Data)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resp.Error)
	}
}
