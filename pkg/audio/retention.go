package audio

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CleanupRetention deletes old recordings from dir. keepLast keeps only
// the newest N files; keepDays deletes files older than the cutoff. A
// zero value disables the respective rule. Returns the number deleted;
// unremovable files are skipped, not fatal.
func CleanupRetention(dir string, keepLast int, keepDays int) (int, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return 0, err
	}
	type fileInfo struct {
		path  string
		mtime time.Time
	}
	var files []fileInfo
	for _, p := range entries {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			continue
		}
		files = append(files, fileInfo{p, st.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	deleted := 0
	if keepLast > 0 {
		for _, f := range files[min(keepLast, len(files)):] {
			if os.Remove(f.path) == nil {
				deleted++
			}
		}
		files = files[:min(keepLast, len(files))]
	}
	if keepDays > 0 {
		cutoff := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)
		for _, f := range files {
			if f.mtime.Before(cutoff) {
				if os.Remove(f.path) == nil {
					deleted++
				}
			}
		}
	}
	return deleted, nil
}
