package sqlite

// schema defines the on-disk layout for the store of record: plain
// TEXT timestamps, INTEGER booleans, JSON-as-TEXT metadata blobs, and
// one CREATE TABLE IF NOT EXISTS per entity so Open is idempotent
// across restarts.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    working_directory TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS work_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    parent_id INTEGER,
    priority INTEGER NOT NULL DEFAULT 5,
    status TEXT NOT NULL DEFAULT 'pending',
    task_type TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    metadata TEXT NOT NULL DEFAULT '{}',
    requires_adr INTEGER NOT NULL DEFAULT 0,
    has_architectural_changes INTEGER NOT NULL DEFAULT 0,
    changes_summary TEXT NOT NULL DEFAULT '',
    idempotency_key TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_work_items_project ON work_items(project_id);
CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);
CREATE INDEX IF NOT EXISTS idx_work_items_project_status_priority
    ON work_items(project_id, status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_work_items_task_type ON work_items(task_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_idempotency
    ON work_items(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != '';

CREATE TABLE IF NOT EXISTS dependency_edges (
    project_id INTEGER NOT NULL,
    dependent_id INTEGER NOT NULL,
    depends_on_id INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (dependent_id, depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_dep_edges_dependent ON dependency_edges(dependent_id);
CREATE INDEX IF NOT EXISTS idx_dep_edges_depends_on ON dependency_edges(depends_on_id);
CREATE INDEX IF NOT EXISTS idx_dep_edges_project ON dependency_edges(project_id);

CREATE TABLE IF NOT EXISTS milestones (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    required_epic_ids TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    project_id INTEGER NOT NULL,
    milestone_id INTEGER,
    status TEXT NOT NULL DEFAULT 'active',
    started_at TEXT NOT NULL,
    ended_at TEXT,
    context_window_limit INTEGER NOT NULL DEFAULT 0,
    cumulative_input INTEGER NOT NULL DEFAULT 0,
    cumulative_cache_read INTEGER NOT NULL DEFAULT 0,
    cumulative_cache_creation INTEGER NOT NULL DEFAULT 0,
    cumulative_output INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    predecessor_id TEXT NOT NULL DEFAULT '',
    successor_id TEXT NOT NULL DEFAULT '',
    degraded INTEGER NOT NULL DEFAULT 0,
    optimization_profile TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS iterations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id INTEGER NOT NULL,
    session_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    prompt_digest TEXT NOT NULL DEFAULT '',
    response_digest TEXT NOT NULL DEFAULT '',
    tok_input INTEGER NOT NULL DEFAULT 0,
    tok_cache_read INTEGER NOT NULL DEFAULT 0,
    tok_cache_creation INTEGER NOT NULL DEFAULT 0,
    tok_output INTEGER NOT NULL DEFAULT 0,
    validation TEXT NOT NULL DEFAULT '',
    quality REAL NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    decision TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    ended_at TEXT,
    degraded INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_iterations_task ON iterations(task_id);

CREATE TABLE IF NOT EXISTS checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    snapshot BLOB NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, idx);

CREATE TABLE IF NOT EXISTS breakpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    resolved_at TEXT,
    resolution_note TEXT NOT NULL DEFAULT '',
    disposition TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_breakpoints_task ON breakpoints(task_id);

CREATE TABLE IF NOT EXISTS retry_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id INTEGER NOT NULL,
    attempt_index INTEGER NOT NULL,
    scheduled_at TEXT NOT NULL,
    delay_ns INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_retry_records_task ON retry_records(task_id);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);
`
