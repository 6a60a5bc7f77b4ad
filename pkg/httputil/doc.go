// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, request parsing, and the shared
// middleware used by every server pipeline.
package httputil
