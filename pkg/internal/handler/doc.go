// Package handler provides internal reflection-based function invocation.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: metadata and invocation for wrapped functions
//   - Reflection-based signature validation
//   - Decoding of transport payloads into declared argument types
package handler
