package db

// migrationsSQL holds the full schema. Statements are separated by ";" and
// executed in order by InitDB. Keep statements free of embedded semicolons.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    level TEXT NOT NULL DEFAULT 'easy',
    description TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS template_steps (
    template_id TEXT NOT NULL REFERENCES templates(id),
    step_order INTEGER NOT NULL,
    step_kind TEXT NOT NULL,
    params TEXT,
    PRIMARY KEY (template_id, step_order)
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    template_id TEXT NOT NULL REFERENCES templates(id),
    learner TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    current_step INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_learner_status ON runs(learner, status);

CREATE TABLE IF NOT EXISTS texts (
    id TEXT PRIMARY KEY,
    source_type TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_texts_source_type ON texts(source_type);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    step_order INTEGER NOT NULL,
    step_kind TEXT NOT NULL,
    text_id TEXT REFERENCES texts(id),
    status TEXT NOT NULL DEFAULT 'open',
    outcome TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_run_step ON sessions(run_id, step_order);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON sessions(run_id) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS vocab (
    id TEXT PRIMARY KEY,
    learner TEXT NOT NULL,
    term TEXT NOT NULL,
    definition TEXT NOT NULL DEFAULT '',
    example_1 TEXT,
    example_2 TEXT,
    difficulty TEXT NOT NULL DEFAULT 'medium',
    lang TEXT NOT NULL DEFAULT 'de',
    practice_count INTEGER NOT NULL DEFAULT 0,
    last_practiced_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (learner, term)
);

CREATE INDEX IF NOT EXISTS idx_vocab_learner_term ON vocab(learner, term);

CREATE TABLE IF NOT EXISTS session_vocab (
    session_id TEXT NOT NULL REFERENCES sessions(id),
    vocab_id TEXT NOT NULL REFERENCES vocab(id),
    relation TEXT NOT NULL DEFAULT 'selected',
    PRIMARY KEY (session_id, vocab_id)
);

CREATE INDEX IF NOT EXISTS idx_session_vocab_vocab ON session_vocab(vocab_id)
`
