package repoingest

import (
	"os"
	"path/filepath"
	"strings"

	"dev.vasic.ultramemory/internal/config"
)

// candidateFile is one file surviving enumeration: its absolute path on disk
// and its path relative to the repository root (the latter is what gets
// stored as Metadata.FilePath and used for incremental lookups).
type candidateFile struct {
	AbsPath string
	RelPath string
	SizeKB  int64
}

// enumerateFiles walks dir, skipping the default and config-supplied exclude
// directories, keeping only files whose extension is in the fixed allow-list
// and outside config's supplementary deny-list, and dropping anything over
// cfg.MaxFileSizeKB.
func enumerateFiles(dir string, cfg config.RepoIngestConfig, extraExcludes []string) ([]candidateFile, error) {
	excludeDirs := make(map[string]bool, len(defaultExcludeDirs)+len(cfg.ExcludeDirs)+len(extraExcludes))
	for d := range defaultExcludeDirs {
		excludeDirs[d] = true
	}
	for _, d := range cfg.ExcludeDirs {
		excludeDirs[d] = true
	}
	for _, d := range extraExcludes {
		excludeDirs[d] = true
	}

	excludeExts := make(map[string]bool, len(cfg.ExcludeExts))
	for _, e := range cfg.ExcludeExts {
		excludeExts[strings.ToLower(e)] = true
	}

	maxSizeBytes := int64(cfg.MaxFileSizeKB) * 1024
	if maxSizeBytes <= 0 {
		maxSizeBytes = 1024 * 1024
	}

	var files []candidateFile
	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			name := info.Name()
			if name != "." && (excludeDirs[name] || strings.HasSuffix(name, ".egg-info")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] || excludeExts[ext] {
			return nil
		}
		if info.Size() > maxSizeBytes {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, candidateFile{AbsPath: path, RelPath: rel, SizeKB: info.Size() / 1024})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// readFileUTF8 reads a file leniently: invalid UTF-8 byte sequences are
// replaced with U+FFFD rather than rejected, matching Python's
// open(..., errors="replace") behaviour for source files with inconsistent
// encodings. Ranging over a Go string already decodes invalid sequences to
// the replacement rune, so rebuilding through that iteration is sufficient.
func readFileUTF8(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(r)
	}
	return b.String(), nil
}
