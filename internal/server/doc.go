// Package server implements the MCP (Model Context Protocol) server for
// handwritten digit recognition.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Input inspection:
//   - image_load: Load (or reload) image and get metadata
//   - image_dimensions: Get width and height
//
// Recognition:
//   - digit_recognize: Label the digit in a picture
//   - digit_normalize: Preview the canonical 28x28 digit
//
// Model management:
//   - digit_model_info: Describe the loaded model
//   - digit_train: Train, save and serve a model from IDX archives
//   - digit_evaluate: Accuracy on a labelled test set
//
// Corpus inspection:
//   - digit_corpus_sample: Preview one picture of an IDX archive
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string as data. A picture without a digit is a
// normal result with "detected": false.
//
// # Usage
//
//	handle := recognizer.NewHandle(knn.IndexBruteForce)
//	srv := server.New(handle, server.Options{ModelPath: "digits_model.db"})
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
