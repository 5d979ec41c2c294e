package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/ironsheep/digit-tools-mcp/internal/corpus"
	"github.com/ironsheep/digit-tools-mcp/internal/evaluate"
	"github.com/ironsheep/digit-tools-mcp/internal/imaging"
	"github.com/ironsheep/digit-tools-mcp/internal/knn"
	"github.com/ironsheep/digit-tools-mcp/internal/normalize"
	"github.com/ironsheep/digit-tools-mcp/internal/recognizer"
)

// defaultPreviewScale enlarges the 28x28 canonical preview to 224x224.
const defaultPreviewScale = 8

// ToolCallParams represents the parameters for a tools/call MCP request.
//
// Example request params:
//
//	{
//	  "name": "digit_recognize",
//	  "arguments": {"path": "/tmp/seven.png", "k": 5}
//	}
//
// Arguments may be omitted; tools then see an empty JSON object.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "digit_recognize", "digit_train").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// A picture without a digit is not an error; see noDigitResult.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		log.Printf("Tool %s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Input inspection
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Recognition
	case "digit_recognize":
		return s.handleDigitRecognize(args)
	case "digit_normalize":
		return s.handleDigitNormalize(args)

	// Model management
	case "digit_model_info":
		return s.handleDigitModelInfo(args)
	case "digit_train":
		return s.handleDigitTrain(args)
	case "digit_evaluate":
		return s.handleDigitEvaluate(args)
	case "digit_corpus_sample":
		return s.handleDigitCorpusSample(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Input Inspection Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

// handleImageLoad always reads the file again so a picture rewritten on disk
// replaces the cached copy.
func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	s.cache.Evict(a.Path)
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Recognition Handlers ===

// regionArgs selects the part of a picture that holds the digit.
type regionArgs struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// rectJSON is an image.Rectangle as returned to clients.
type rectJSON struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func toRect(r image.Rectangle) *rectJSON {
	return &rectJSON{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// noDigitResult is the successful answer for a picture without a digit.
type noDigitResult struct {
	Detected bool   `json:"detected"`
	Message  string `json:"message"`
}

func noDigit() noDigitResult {
	return noDigitResult{Detected: false, Message: normalize.ErrNoDigitDetected.Error()}
}

// loadGray loads path through the cache, crops it to region when given and
// converts it to grayscale.
func (s *Server) loadGray(path string, region *regionArgs) (*image.Gray, error) {
	if region == nil {
		return s.cache.LoadGray(path)
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	img, err = imaging.CropRegion(img, region.X1, region.Y1, region.X2, region.Y2)
	if err != nil {
		return nil, err
	}
	return imaging.ToGray(img), nil
}

type digitRecognizeArgs struct {
	Path   string      `json:"path"`
	K      int         `json:"k"`
	Region *regionArgs `json:"region"`
}

type recognizeResult struct {
	Detected bool `json:"detected"`
	K        int  `json:"k"`
	*knn.Result
}

func (s *Server) handleDigitRecognize(args json.RawMessage) (interface{}, error) {
	var a digitRecognizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.K == 0 {
		a.K = s.opts.K
	}
	gray, err := s.loadGray(a.Path, a.Region)
	if err != nil {
		return nil, err
	}

	res, err := s.handle.Recognize(gray, a.K)
	if errors.Is(err, normalize.ErrNoDigitDetected) {
		return noDigit(), nil
	}
	if err != nil {
		return nil, err
	}
	return recognizeResult{Detected: true, K: len(res.Neighbors), Result: &res}, nil
}

type digitNormalizeArgs struct {
	Path   string      `json:"path"`
	Scale  int         `json:"scale"`
	Region *regionArgs `json:"region"`
}

type normalizeResult struct {
	Detected         bool                   `json:"detected"`
	Inverted         bool                   `json:"inverted"`
	Region           *rectJSON              `json:"region"`
	Crop             *rectJSON              `json:"crop"`
	Area             int                    `json:"area"`
	ForegroundPixels int                    `json:"foreground_pixels"`
	Preview          *imaging.PreviewResult `json:"preview"`
}

func (s *Server) handleDigitNormalize(args json.RawMessage) (interface{}, error) {
	var a digitNormalizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = defaultPreviewScale
	}
	gray, err := s.loadGray(a.Path, a.Region)
	if err != nil {
		return nil, err
	}

	an, err := normalize.Analyze(gray)
	if errors.Is(err, normalize.ErrNoDigitDetected) {
		return noDigit(), nil
	}
	if err != nil {
		return nil, err
	}
	preview, err := imaging.Preview(an.Canonical, a.Scale)
	if err != nil {
		return nil, err
	}

	fg := 0
	for _, p := range an.Canonical.Pix {
		if p > 0 {
			fg++
		}
	}
	return normalizeResult{
		Detected:         true,
		Inverted:         an.Inverted,
		Region:           toRect(an.Region),
		Crop:             toRect(an.Crop),
		Area:             an.Area,
		ForegroundPixels: fg,
		Preview:          preview,
	}, nil
}

// === Model Management Handlers ===

type modelInfoResult struct {
	recognizer.Info
	ModelPath    string `json:"model_path,omitempty"`
	CachedImages *int   `json:"cached_images,omitempty"`
}

func (s *Server) handleDigitModelInfo(args json.RawMessage) (interface{}, error) {
	cached := s.cache.Len()
	return modelInfoResult{Info: s.handle.Info(), ModelPath: s.opts.ModelPath, CachedImages: &cached}, nil
}

type digitTrainArgs struct {
	Images    string `json:"images"`
	Labels    string `json:"labels"`
	DefaultK  int    `json:"default_k"`
	ModelPath string `json:"model_path"`
	NoSave    bool   `json:"no_save"`
}

func (s *Server) handleDigitTrain(args json.RawMessage) (interface{}, error) {
	var a digitTrainArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.DefaultK == 0 {
		a.DefaultK = s.opts.DefaultK
	}
	if a.ModelPath == "" {
		a.ModelPath = s.opts.ModelPath
	}
	if a.NoSave {
		a.ModelPath = ""
	}

	ts, err := corpus.LoadTrainingSet(a.Images, a.Labels)
	if err != nil {
		return nil, err
	}
	info, err := s.handle.Retrain(ts, a.DefaultK, a.ModelPath)
	if err != nil {
		return nil, err
	}
	return modelInfoResult{Info: info, ModelPath: a.ModelPath}, nil
}

type digitEvaluateArgs struct {
	Images string `json:"images"`
	Labels string `json:"labels"`
	Ks     []int  `json:"ks"`
	Limit  int    `json:"limit"`
}

type evaluateResult struct {
	Reports []evaluate.Report `json:"reports"`
	BestK   int               `json:"best_k"`
}

func (s *Server) handleDigitEvaluate(args json.RawMessage) (interface{}, error) {
	var a digitEvaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	e := s.handle.Engine()
	if e == nil {
		return nil, knn.ErrEmptyModel
	}

	test, err := corpus.LoadTrainingSet(a.Images, a.Labels)
	if err != nil {
		return nil, err
	}
	reports, err := evaluate.Run(context.Background(), e.Index(), test, evaluate.Options{
		Ks:    a.Ks,
		Limit: a.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := evaluateResult{Reports: reports}
	if best, ok := evaluate.Best(reports); ok {
		out.BestK = best.K
	}
	return out, nil
}

// === Corpus Inspection Handlers ===

type digitCorpusSampleArgs struct {
	Images string `json:"images"`
	Labels string `json:"labels"`
	Index  int    `json:"index"`
	Scale  int    `json:"scale"`
}

type corpusSampleResult struct {
	Index   int                    `json:"index"`
	Count   int                    `json:"count"`
	Width   int                    `json:"width"`
	Height  int                    `json:"height"`
	Label   *knn.Label             `json:"label,omitempty"`
	Preview *imaging.PreviewResult `json:"preview"`
}

// handleDigitCorpusSample renders one picture of an IDX archive, with its label
// when a label archive is given.
func (s *Server) handleDigitCorpusSample(args json.RawMessage) (interface{}, error) {
	var a digitCorpusSampleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = defaultPreviewScale
	}

	set, err := corpus.ReadImagesFile(a.Images)
	if err != nil {
		return nil, err
	}
	img, err := set.Image(a.Index)
	if err != nil {
		return nil, err
	}
	preview, err := imaging.Preview(img, a.Scale)
	if err != nil {
		return nil, err
	}

	out := corpusSampleResult{
		Index:   a.Index,
		Count:   set.Len(),
		Width:   set.Cols,
		Height:  set.Rows,
		Preview: preview,
	}
	if a.Labels != "" {
		labels, err := corpus.ReadLabelsFile(a.Labels)
		if err != nil {
			return nil, err
		}
		if len(labels) != set.Len() {
			return nil, fmt.Errorf("%w: %d images but %d labels", corpus.ErrFormat, set.Len(), len(labels))
		}
		out.Label = &labels[a.Index]
	}
	return out, nil
}
