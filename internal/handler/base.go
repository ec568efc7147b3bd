// Package handler implements the per-format extract and serialize handlers
// registered with the core registry.
package handler

import (
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
)

// matcher answers the format-identification half of core.Handler.
// Extension matches are checked before declared MIME types.
type matcher struct {
	format     content.Format
	extensions []string
	mimeTypes  []string
}

func (m matcher) Format() content.Format {
	return m.format
}

// MatchesExtension reports whether filename carries one of the handler's
// extensions (case-insensitive).
func (m matcher) MatchesExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, e := range m.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (m matcher) matchesMIME(declaredType string) bool {
	mt := normalizeMIME(declaredType)
	if mt == "" {
		return false
	}
	for _, t := range m.mimeTypes {
		if t == mt {
			return true
		}
	}
	return false
}

func (m matcher) CanHandle(filename, declaredType string) bool {
	return m.MatchesExtension(filename) || m.matchesMIME(declaredType)
}

// normalizeMIME strips parameters and lowercases a declared content type.
func normalizeMIME(declaredType string) string {
	mt, _, _ := strings.Cut(declaredType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func parseErr(f content.Format, err error) error {
	return core.NewParseError(string(f), err)
}

func serializeErr(f content.Format, err error) error {
	return core.NewSerializationError(string(f), err)
}
