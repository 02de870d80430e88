package path

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
)

// DefaultTemplateName is the template seeded on first start.
const DefaultTemplateName = "standard"

// Templates is the store of immutable step plans. Templates are created at
// configuration time and never mutated; many runs may reference one template.
type Templates struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewTemplates creates a template store over the given database.
func NewTemplates(conn *sql.DB) *Templates {
	return &Templates{DB: conn, Now: time.Now}
}

// Save persists a new template with its steps. The step orders are
// normalized to 0..n-1 in the given sequence.
func (t *Templates) Save(name, level, description string, steps []db.StepSpec) (db.Template, error) {
	tmpl := db.Template{
		ID:          uuid.New(),
		Name:        name,
		Level:       level,
		Description: description,
		CreatedAt:   t.Now().UTC(),
		Steps:       make([]db.StepSpec, len(steps)),
	}
	for i, s := range steps {
		s.Order = i
		tmpl.Steps[i] = s
	}
	err := db.WithTx(t.DB, func(tx *sql.Tx) error {
		return db.InsertTemplate(tx, tmpl)
	})
	if err != nil {
		return db.Template{}, err
	}
	return tmpl, nil
}

// Get loads a template by id.
func (t *Templates) Get(id uuid.UUID) (db.Template, error) {
	tmpl, err := db.GetTemplate(t.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Template{}, fmt.Errorf("template %s: %w", id, ErrTemplateNotFound)
	}
	return tmpl, err
}

// GetByName loads a template by its unique name.
func (t *Templates) GetByName(name string) (db.Template, error) {
	tmpl, err := db.GetTemplateByName(t.DB, name)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Template{}, fmt.Errorf("template %q: %w", name, ErrTemplateNotFound)
	}
	return tmpl, err
}

// List returns all templates without their steps.
func (t *Templates) List() ([]db.Template, error) {
	return db.ListTemplates(t.DB)
}

// EnsureDefault seeds the standard three-step plan (read a news passage,
// drill the selected vocabulary, review) unless it already exists.
func (t *Templates) EnsureDefault() (db.Template, error) {
	tmpl, err := t.GetByName(DefaultTemplateName)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, ErrTemplateNotFound) {
		return db.Template{}, err
	}
	return t.Save(DefaultTemplateName, "easy", "news passage, vocabulary drill, review", []db.StepSpec{
		{Kind: db.StepReadRespond, Params: db.StepParams{Source: db.SourceNews, Questions: 3}},
		{Kind: db.StepVocabDrill},
		{Kind: db.StepReview, Params: db.StepParams{ReviewCount: 2}},
	})
}
