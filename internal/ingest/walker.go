// Package ingest turns a department-per-folder document corpus into
// embedded, searchable chunks. It walks the corpus, reads and chunks
// changed files, and pushes them into the vector store, keeping a
// content-hash state file so unchanged documents are never re-embedded.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziadkadry99/finchat/internal/access"
)

// DefaultMaxFileSize is the maximum file size to process (1 MB).
const DefaultMaxFileSize int64 = 1 << 20

// FileInfo holds metadata about a single corpus file discovered during
// traversal.
type FileInfo struct {
	Path        string            // Absolute path on disk.
	RelPath     string            // Path relative to the corpus root, slash-separated.
	Department  access.Collection // Taken from the top-level folder name.
	Size        int64             // File size in bytes.
	ContentHash string            // SHA-256 hex digest of the file content.
}

// DocumentID returns the stable identifier for the document, which doubles
// as the chunk ID prefix in the vector store.
func (f FileInfo) DocumentID() string {
	return f.RelPath
}

// WalkConfig controls the behaviour of the Walk function.
type WalkConfig struct {
	RootDir     string   // Corpus root; department folders live directly under it.
	Include     []string // Glob patterns matched against the path below the department folder.
	Exclude     []string // Glob patterns removing files after the include pass.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// Walk traverses the corpus and returns metadata for every document that
// passes filtering. Files must live under a recognized department folder;
// anything at the corpus root or under an unknown folder is ignored.
// Binary files and oversized files are skipped.
func Walk(config WalkConfig) ([]FileInfo, error) {
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve root: %w", err)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var files []FileInfo

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Only process regular files.
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		dept, rest, ok := splitDepartment(relPath)
		if !ok {
			return nil
		}

		// Apply user-defined include/exclude filters against the path
		// below the department folder, so patterns don't need to name it.
		if !matchesInclude(rest, config.Include) {
			return nil
		}
		if matchesExclude(rest, config.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		// Skip files exceeding the size limit.
		if info.Size() > maxSize {
			return nil
		}

		// Skip binary files.
		if isBinary(path) {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:        path,
			RelPath:     relPath,
			Department:  dept,
			Size:        info.Size(),
			ContentHash: hash,
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("ingest: traversal: %w", err)
	}

	return files, nil
}

// splitDepartment separates the leading department folder from the rest of
// a corpus-relative path. Paths without a recognized department are rejected.
func splitDepartment(relPath string) (access.Collection, string, bool) {
	seg, rest, found := strings.Cut(relPath, "/")
	if !found {
		// File directly in the corpus root, outside every department.
		return "", "", false
	}
	dept, err := access.ParseCollection(seg)
	if err != nil {
		return "", "", false
	}
	return dept, rest, true
}

// matchesInclude returns true if the given path matches any include
// pattern. An empty pattern list includes everything.
func matchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// matchesExclude returns true if the given path matches any exclude
// pattern. An empty pattern list excludes nothing.
func matchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny checks if relPath matches any of the given glob patterns.
// It uses doublestar for ** support and also matches bare filenames.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)

		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}

		base := filepath.Base(normalized)
		if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// isBinary reads the first 512 bytes of a file and checks for NUL bytes,
// which is a simple but effective heuristic for binary content.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true // treat unreadable files as binary
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}

	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}

// hashFile computes the SHA-256 digest of the given file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
