package texts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilePool serves passages from a directory of plain-text files, split into
// word chunks. A small JSON progress file remembers the next chunk per
// source file so repeated runs move through the material instead of
// replaying the first chunk.
type FilePool struct {
	Dir           string
	WordsPerChunk int
	// ProgressPath is where chunk cursors are persisted. Empty disables
	// persistence (every process start begins at the first unread chunk
	// of this process).
	ProgressPath string

	progress map[string]int
}

// NewFilePool creates a pool over dir with the given chunk size.
func NewFilePool(dir string, wordsPerChunk int, progressPath string) *FilePool {
	if wordsPerChunk <= 0 {
		wordsPerChunk = 220
	}
	return &FilePool{Dir: dir, WordsPerChunk: wordsPerChunk, ProgressPath: progressPath}
}

// Next returns the next unread chunk across the pool's files, advancing the
// cursor of the file it came from. Returns ErrNoSourceAvailable when every
// chunk of every file has been served.
func (fp *FilePool) Next(ctx context.Context) (Selection, error) {
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	if fp.progress == nil {
		fp.progress = fp.loadProgress()
	}

	files, err := filepath.Glob(filepath.Join(fp.Dir, "*.txt"))
	if err != nil {
		return Selection{}, fmt.Errorf("scan text pool %s: %w", fp.Dir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return Selection{}, fmt.Errorf("text pool %s is empty: %w", fp.Dir, ErrNoSourceAvailable)
	}

	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return Selection{}, fmt.Errorf("read %s: %w", f, err)
		}
		chunks := ChunkWords(strings.TrimSpace(string(raw)), fp.WordsPerChunk)
		key := fileKey(f)
		idx := fp.progress[key]
		if idx >= len(chunks) {
			continue
		}
		fp.progress[key] = idx + 1
		if err := fp.saveProgress(); err != nil {
			return Selection{}, err
		}
		title := fmt.Sprintf("%s (%d/%d)", filepath.Base(f), idx+1, len(chunks))
		return Selection{Title: title, Content: chunks[idx]}, nil
	}
	return Selection{}, fmt.Errorf("text pool %s exhausted: %w", fp.Dir, ErrNoSourceAvailable)
}

// ChunkWords splits text into chunks of at most wordsPerChunk words.
func ChunkWords(text string, wordsPerChunk int) []string {
	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += wordsPerChunk {
		end := i + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

func fileKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha1.Sum([]byte(abs))
	return hex.EncodeToString(sum[:])[:12]
}

func (fp *FilePool) loadProgress() map[string]int {
	prog := make(map[string]int)
	if fp.ProgressPath == "" {
		return prog
	}
	raw, err := os.ReadFile(fp.ProgressPath)
	if err != nil {
		return prog
	}
	if err := json.Unmarshal(raw, &prog); err != nil {
		return make(map[string]int)
	}
	return prog
}

func (fp *FilePool) saveProgress() error {
	if fp.ProgressPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(fp.ProgressPath), 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	raw, err := json.MarshalIndent(fp.progress, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fp.ProgressPath, raw, 0o644); err != nil {
		return fmt.Errorf("save pool progress: %w", err)
	}
	return nil
}
