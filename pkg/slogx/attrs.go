// Package slogx provides small helpers for building log/slog attributes
// used throughout the engine.
package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns an attribute with the key "error" and the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// ByteString returns an attribute holding the string form of a byte slice.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer returns an attribute holding the string form of a fmt.Stringer.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}
