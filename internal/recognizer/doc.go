// Package recognizer joins the normalizer and the nearest-neighbor classifier
// behind an explicitly owned model handle.
//
// A Handle is created once at startup and passed to every adapter that needs
// it. It holds an immutable Engine (model plus search index) behind an atomic
// pointer: queries load the current engine once and use it to completion, while
// retraining builds a complete new engine and swaps it in. A failed load or
// retrain never touches the engine being served.
package recognizer
