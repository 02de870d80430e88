package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateOrGetVocab returns the existing item id for (learner, term) or
// inserts a new item and returns its id. An existing row keeps its
// definition unless it was empty and the new one is not.
func CreateOrGetVocab(exec DBExecutor, item VocabItem) (uuid.UUID, error) {
	term := strings.TrimSpace(item.Term)
	if term == "" {
		return uuid.Nil, fmt.Errorf("term must be non-empty")
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Difficulty == "" {
		item.Difficulty = "medium"
	}
	if item.Lang == "" {
		item.Lang = "de"
	}

	var id uuid.UUID
	query := `INSERT INTO vocab (id, learner, term, definition, example_1, example_2, difficulty, lang, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(learner, term)
	          DO UPDATE SET
	            definition = COALESCE(NULLIF(vocab.definition, ''), excluded.definition),
	            example_1 = COALESCE(vocab.example_1, excluded.example_1),
	            example_2 = COALESCE(vocab.example_2, excluded.example_2),
	            updated_at = excluded.updated_at
	          RETURNING id`

	err := exec.QueryRow(query,
		item.ID.String(), item.Learner, term, item.Definition,
		nullableString(item.Example1), nullableString(item.Example2),
		item.Difficulty, item.Lang, item.CreatedAt, item.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert vocab %q: %w", term, err)
	}
	return id, nil
}

// LinkSessionVocab associates a session with a vocabulary item. Idempotent
// per (session, item) pair through the primary key.
func LinkSessionVocab(exec DBExecutor, sessionID, vocabID uuid.UUID, relation string) error {
	if relation == "" {
		relation = "selected"
	}
	_, err := exec.Exec(
		`INSERT OR IGNORE INTO session_vocab (session_id, vocab_id, relation) VALUES (?, ?, ?)`,
		sessionID.String(), vocabID.String(), relation,
	)
	if err != nil {
		return fmt.Errorf("link session %s to vocab %s: %w", sessionID, vocabID, err)
	}
	return nil
}

const vocabColumns = `v.id, v.learner, v.term, v.definition, v.example_1, v.example_2,
	v.difficulty, v.lang, v.practice_count, v.last_practiced_at, v.created_at, v.updated_at`

// VocabForSession returns the items linked to a session, ordered by term.
func VocabForSession(exec DBExecutor, sessionID uuid.UUID) ([]VocabItem, error) {
	rows, err := exec.Query(
		`SELECT `+vocabColumns+` FROM vocab v
		 JOIN session_vocab sv ON sv.vocab_id = v.id
		 WHERE sv.session_id = ? ORDER BY v.term COLLATE NOCASE`,
		sessionID.String(),
	)
	if err != nil {
		return nil, err
	}
	return collectVocab(rows)
}

// VocabForRun returns the distinct items linked to any session of the run.
// Ordering prefers never-practiced and least-recently-practiced items so
// review sampling leans toward what needs attention.
func VocabForRun(exec DBExecutor, runID uuid.UUID) ([]VocabItem, error) {
	rows, err := exec.Query(
		`SELECT DISTINCT `+vocabColumns+` FROM vocab v
		 JOIN session_vocab sv ON sv.vocab_id = v.id
		 JOIN sessions s ON s.id = sv.session_id
		 WHERE s.run_id = ?
		 ORDER BY (v.last_practiced_at IS NOT NULL) ASC, v.last_practiced_at ASC, v.term COLLATE NOCASE`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	return collectVocab(rows)
}

// ListVocab returns all items of a learner alphabetically.
func ListVocab(exec DBExecutor, learner string) ([]VocabItem, error) {
	rows, err := exec.Query(
		`SELECT `+vocabColumns+` FROM vocab v WHERE v.learner = ? ORDER BY v.term COLLATE NOCASE`,
		learner,
	)
	if err != nil {
		return nil, err
	}
	return collectVocab(rows)
}

// GetVocabByTerm loads a single item for the learner, or sql.ErrNoRows.
func GetVocabByTerm(exec DBExecutor, learner, term string) (VocabItem, error) {
	rows, err := exec.Query(
		`SELECT `+vocabColumns+` FROM vocab v WHERE v.learner = ? AND v.term = ? LIMIT 1`,
		learner, strings.TrimSpace(term),
	)
	if err != nil {
		return VocabItem{}, err
	}
	items, err := collectVocab(rows)
	if err != nil {
		return VocabItem{}, err
	}
	if len(items) == 0 {
		return VocabItem{}, sql.ErrNoRows
	}
	return items[0], nil
}

// MarkVocabPracticed increments the practice counter and stamps the time.
func MarkVocabPracticed(exec DBExecutor, id uuid.UUID, at time.Time) error {
	res, err := exec.Exec(
		`UPDATE vocab SET practice_count = practice_count + 1, last_practiced_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id.String(),
	)
	if err != nil {
		return fmt.Errorf("mark vocab practiced: %w", err)
	}
	return requireOneRow(res, "vocab", id)
}

func collectVocab(rows *sql.Rows) ([]VocabItem, error) {
	defer rows.Close()
	var out []VocabItem
	for rows.Next() {
		var v VocabItem
		var ex1, ex2 sql.NullString
		var practiced sql.NullTime
		err := rows.Scan(&v.ID, &v.Learner, &v.Term, &v.Definition, &ex1, &ex2,
			&v.Difficulty, &v.Lang, &v.PracticeCount, &practiced, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return nil, err
		}
		v.Example1 = ex1.String
		v.Example2 = ex2.String
		if practiced.Valid {
			t := practiced.Time
			v.LastPracticedAt = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// nullableString returns nil for "" so empty optionals store as NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
