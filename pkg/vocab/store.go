// Package vocab maintains the learner's vocabulary inventory and its
// provenance links to practice sessions.
package vocab

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
)

// ErrInsufficientVocabulary is returned when a review step is requested
// but no vocabulary has been collected yet.
var ErrInsufficientVocabulary = errors.New("insufficient vocabulary for review")

// Relations recorded on session-vocab links.
const (
	RelationSelected  = "selected"
	RelationPracticed = "practiced"
	RelationReviewed  = "reviewed"
)

// Store manages vocabulary items. Items are upserted per (learner, term);
// a term seen twice never produces a duplicate row.
type Store struct {
	DB   *sql.DB
	Rand *rand.Rand
	Now  func() time.Time
}

// NewStore creates a vocabulary store with time-seeded sampling.
func NewStore(conn *sql.DB) *Store {
	return &Store{
		DB:   conn,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:  time.Now,
	}
}

// Add upserts one item in its own transaction and returns its id.
func (s *Store) Add(item db.VocabItem) (uuid.UUID, error) {
	now := s.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	var id uuid.UUID
	err := db.WithTx(s.DB, func(tx *sql.Tx) error {
		var err error
		id, err = db.CreateOrGetVocab(tx, item)
		return err
	})
	return id, err
}

// RecordSelectionIn upserts the given terms for the learner and links them
// to the session inside the caller's transaction. Idempotent per term.
func (s *Store) RecordSelectionIn(exec db.DBExecutor, sessionID uuid.UUID, learner string, terms []db.VocabItem, relation string) ([]uuid.UUID, error) {
	now := s.Now().UTC()
	ids := make([]uuid.UUID, 0, len(terms))
	for _, item := range terms {
		if strings.TrimSpace(item.Term) == "" {
			continue
		}
		item.Learner = learner
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		id, err := db.CreateOrGetVocab(exec, item)
		if err != nil {
			return nil, err
		}
		if err := db.LinkSessionVocab(exec, sessionID, id, relation); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RecordSelection is the transaction-wrapped form of RecordSelectionIn.
func (s *Store) RecordSelection(sessionID uuid.UUID, learner string, terms []db.VocabItem, relation string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.WithTx(s.DB, func(tx *sql.Tx) error {
		var err error
		ids, err = s.RecordSelectionIn(tx, sessionID, learner, terms, relation)
		return err
	})
	return ids, err
}

// ItemsForStep returns the vocabulary selected in the run's preceding
// step, for a drill step that practices what the previous step collected.
// Empty when the preceding step linked nothing.
func (s *Store) ItemsForStep(exec db.DBExecutor, runID uuid.UUID, stepOrder int) ([]db.VocabItem, error) {
	if stepOrder <= 0 {
		return nil, nil
	}
	prev, err := db.LatestSessionForStep(exec, runID, stepOrder-1)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, nil
	}
	return db.VocabForSession(exec, prev.ID)
}

// SampleForReview picks n items collected anywhere in the run. Fewer
// than n distinct items is ErrInsufficientVocabulary; the caller decides
// whether the review step degrades or aborts. Never-practiced items are
// drawn before practiced ones; within each group the order is shuffled
// so repeated reviews vary.
func (s *Store) SampleForReview(exec db.DBExecutor, runID uuid.UUID, n int) ([]db.VocabItem, error) {
	items, err := db.VocabForRun(exec, runID)
	if err != nil {
		return nil, err
	}
	if len(items) < n || len(items) == 0 {
		return nil, fmt.Errorf("run %s has %d distinct items, need %d: %w",
			runID, len(items), n, ErrInsufficientVocabulary)
	}
	var fresh, seen []db.VocabItem
	for _, it := range items {
		if it.PracticeCount == 0 {
			fresh = append(fresh, it)
		} else {
			seen = append(seen, it)
		}
	}
	s.shuffle(fresh)
	s.shuffle(seen)
	picked := append(fresh, seen...)
	if n > 0 && len(picked) > n {
		picked = picked[:n]
	}
	return picked, nil
}

// MarkPracticedIn bumps practice counters and links the items to the
// session with the given relation, inside the caller's transaction.
func (s *Store) MarkPracticedIn(exec db.DBExecutor, sessionID uuid.UUID, ids []uuid.UUID, relation string) error {
	now := s.Now().UTC()
	for _, id := range ids {
		if err := db.MarkVocabPracticed(exec, id, now); err != nil {
			return err
		}
		if err := db.LinkSessionVocab(exec, sessionID, id, relation); err != nil {
			return err
		}
	}
	return nil
}

// MarkPracticed is the transaction-wrapped form of MarkPracticedIn.
func (s *Store) MarkPracticed(sessionID uuid.UUID, ids []uuid.UUID, relation string) error {
	return db.WithTx(s.DB, func(tx *sql.Tx) error {
		return s.MarkPracticedIn(tx, sessionID, ids, relation)
	})
}

// List returns the learner's full inventory alphabetically.
func (s *Store) List(learner string) ([]db.VocabItem, error) {
	return db.ListVocab(s.DB, learner)
}

// Lookup loads a single item by term, or sql.ErrNoRows.
func (s *Store) Lookup(learner, term string) (db.VocabItem, error) {
	return db.GetVocabByTerm(s.DB, learner, term)
}

func (s *Store) shuffle(items []db.VocabItem) {
	if s.Rand == nil {
		return
	}
	s.Rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
