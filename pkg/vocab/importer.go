package vocab

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
)

// TermEntry is one record of an import file.
type TermEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Example1   string `json:"example_1,omitempty"`
	Example2   string `json:"example_2,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Lang       string `json:"lang,omitempty"`
}

// Importer loads term files into the learner's inventory in batches.
type Importer struct {
	Store     *Store
	BatchSize int
	Logger    *slog.Logger
}

// NewImporter creates an importer over the store.
func NewImporter(store *Store) *Importer {
	return &Importer{Store: store, BatchSize: 50, Logger: slog.Default()}
}

// ImportFile reads a JSON array of term entries and upserts them for the
// learner. Returns the number of entries written. Blank terms are skipped
// with a warning rather than aborting the whole file.
func (im *Importer) ImportFile(path, learner string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read term file %s: %w", path, err)
	}
	var entries []TermEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse term file %s: %w", path, err)
	}
	return im.Import(entries, learner)
}

// Import upserts the entries through the batch writer.
func (im *Importer) Import(entries []TermEntry, learner string) (int, error) {
	bw := NewBatchWriter(im.Store.DB, im.BatchSize)
	now := im.Store.Now().UTC()

	written := 0
	for i, e := range entries {
		term := strings.TrimSpace(e.Term)
		if term == "" {
			im.Logger.Warn("skipping entry with empty term", "index", i, "file_entry", e)
			continue
		}
		item := db.VocabItem{
			ID:         uuid.New(),
			Learner:    learner,
			Term:       term,
			Definition: e.Definition,
			Example1:   e.Example1,
			Example2:   e.Example2,
			Difficulty: e.Difficulty,
			Lang:       e.Lang,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err := bw.Submit(func(tx *sql.Tx) error {
			_, err := db.CreateOrGetVocab(tx, item)
			return err
		})
		if err != nil {
			return written, err
		}
		written++
	}
	if err := bw.Close(); err != nil {
		return written, err
	}
	im.Logger.Info("vocabulary import finished", "learner", learner, "written", written, "skipped", len(entries)-written)
	return written, nil
}
