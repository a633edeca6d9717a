package database

const schema = `
CREATE TABLE IF NOT EXISTS reply_tokens (
    code TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    context_post_id INTEGER,
    response_post_id INTEGER,
    allowed_from TEXT NOT NULL,
    used_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS intake_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_uid INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tokens_user ON reply_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_tokens_context ON reply_tokens(context_post_id);
`
