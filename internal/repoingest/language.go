package repoingest

import (
	"path/filepath"
	"strings"

	enry "github.com/go-enry/go-enry/v2"
)

// detectLanguage names a file's programming language. go-enry's content-aware
// classifier is tried first (it recognises most mainstream languages even
// without an extension); the legacy extension table fills in the
// VB6/Pascal/Delphi/Fortran-era families go-enry has no grammar for.
func detectLanguage(relPath string, content []byte) string {
	if lang := enry.GetLanguage(relPath, content); lang != "" {
		return lang
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	if lang, ok := legacyLanguageNames[ext]; ok {
		return lang
	}
	return "Unknown"
}
