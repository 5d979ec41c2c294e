package server

import "github.com/ironsheep/digit-tools-mcp/internal/imaging"

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pathProperty is the schema shared by every tool that reads a picture.
var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the image file",
}

// regionProperty restricts recognition to part of a picture.
var regionProperty = map[string]interface{}{
	"type":        "object",
	"description": "Optional rectangle holding the digit; x2 and y2 are exclusive",
	"properties": map[string]interface{}{
		"x1": map[string]interface{}{"type": "integer"},
		"y1": map[string]interface{}{"type": "integer"},
		"x2": map[string]interface{}{"type": "integer"},
		"y2": map[string]interface{}{"type": "integer"},
	},
	"required": []string{"x1", "y1", "x2", "y2"},
}

// GetToolDefinitions returns all available tools.
//
// Returns:
//   - []Tool: One entry per tool dispatched by tools/call, each with a JSON
//     Schema describing its arguments. The list is built fresh on every call.
func GetToolDefinitions() []Tool {
	return []Tool{
		// Input inspection
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format. The file is read again even when cached, and the cached copy serves subsequent recognition calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Recognition
		{
			Name:        "digit_recognize",
			Description: "Recognize the handwritten digit (0-9) in an image. Returns the label, a 0-100 confidence and the nearest training samples. Reports detected=false when the picture holds no digit.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"k": map[string]interface{}{
						"type":        "integer",
						"description": "Number of neighbors that vote. Default is the model's k",
						"minimum":     1,
					},
					"region": regionProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "digit_normalize",
			Description: "Show how an image is canonicalized before recognition: the 28x28 digit as base64 PNG, the detected region and whether the input was inverted.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"scale": map[string]interface{}{
						"type":        "integer",
						"description": "Integer enlargement of the preview, 1 to 32. Default 8",
						"default":     defaultPreviewScale,
						"minimum":     1,
						"maximum":     imaging.MaxPreviewScale,
					},
					"region": regionProperty,
				},
				"required": []string{"path"},
			},
		},

		// Model management
		{
			Name:        "digit_model_info",
			Description: "Describe the loaded recognition model: sample count, default k, index kind and samples per digit, plus the number of cached pictures.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "digit_train",
			Description: "Train a new model from IDX image and label archives (optionally gzipped), save it and start serving it. The current model stays in place if training fails.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"images": map[string]interface{}{
						"type":        "string",
						"description": "Path to the IDX3 image archive",
					},
					"labels": map[string]interface{}{
						"type":        "string",
						"description": "Path to the IDX1 label archive",
					},
					"default_k": map[string]interface{}{
						"type":        "integer",
						"description": "Neighbor count recorded in the model. Default 5",
						"minimum":     1,
					},
					"model_path": map[string]interface{}{
						"type":        "string",
						"description": "Where to save the model. Defaults to the configured model path",
					},
					"no_save": map[string]interface{}{
						"type":        "boolean",
						"description": "Serve the new model without writing it to disk",
						"default":     false,
					},
				},
				"required": []string{"images", "labels"},
			},
		},
		{
			Name:        "digit_evaluate",
			Description: "Measure the accuracy of the loaded model on a labelled IDX test set for one or more neighbor counts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"images": map[string]interface{}{
						"type":        "string",
						"description": "Path to the IDX3 test image archive",
					},
					"labels": map[string]interface{}{
						"type":        "string",
						"description": "Path to the IDX1 test label archive",
					},
					"ks": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer", "minimum": 1},
						"description": "Neighbor counts to compare. Default [3, 5, 7, 9]",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Evaluate only the first N test samples",
						"minimum":     0,
					},
				},
				"required": []string{"images", "labels"},
			},
		},

		// Corpus inspection
		{
			Name:        "digit_corpus_sample",
			Description: "Render one picture of an IDX image archive as base64 PNG, with its label when a label archive is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"images": map[string]interface{}{
						"type":        "string",
						"description": "Path to the IDX3 image archive",
					},
					"labels": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to the matching IDX1 label archive",
					},
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "Zero-based position of the picture in the archive",
						"minimum":     0,
					},
					"scale": map[string]interface{}{
						"type":        "integer",
						"description": "Integer enlargement of the preview, 1 to 32. Default 8",
						"default":     defaultPreviewScale,
						"minimum":     1,
						"maximum":     imaging.MaxPreviewScale,
					},
				},
				"required": []string{"images", "index"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
