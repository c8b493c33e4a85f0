package store

// Schema contains the complete DDL for the modmail relay tables.
const Schema = `
CREATE TABLE IF NOT EXISTS threads (
    id                   TEXT PRIMARY KEY,
    user_id              INTEGER NOT NULL,
    user_name            TEXT NOT NULL,
    channel_id           TEXT NOT NULL,
    status               INTEGER NOT NULL DEFAULT 1, -- 0=closed, 1=open
    created_at           INTEGER NOT NULL,
    closed_at            INTEGER,
    closed_by            TEXT,
    category_id          TEXT,
    category_name        TEXT,
    required_permissions TEXT,
    user_left            INTEGER NOT NULL DEFAULT 0,
    next_message_number  INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_threads_user_status ON threads(user_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_threads_channel_open ON threads(channel_id) WHERE status = 1;
CREATE UNIQUE INDEX IF NOT EXISTS idx_threads_user_open ON threads(user_id) WHERE status = 1;

CREATE TABLE IF NOT EXISTS thread_messages (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id          TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
    user_id            INTEGER NOT NULL,
    user_name          TEXT NOT NULL,
    is_anonymous       INTEGER NOT NULL DEFAULT 0,
    dm_message_id      TEXT,
    inbox_message_id   TEXT,
    message_number     INTEGER,
    created_at         INTEGER NOT NULL,
    content            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_thread_messages_dm ON thread_messages(dm_message_id);
CREATE INDEX IF NOT EXISTS idx_thread_messages_inbox ON thread_messages(inbox_message_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_thread_messages_number ON thread_messages(thread_id, message_number) WHERE message_number IS NOT NULL;

CREATE TABLE IF NOT EXISTS thread_status (
    thread_id        TEXT PRIMARY KEY REFERENCES threads(id) ON DELETE CASCADE,
    channel_id       TEXT NOT NULL,
    owner_id         TEXT,
    taken_by         TEXT,
    last_message_by  TEXT NOT NULL DEFAULT 'user', -- 'user' | 'staff'
    last_message_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_closures (
    thread_id            TEXT PRIMARY KEY REFERENCES threads(id) ON DELETE CASCADE,
    close_at             INTEGER NOT NULL,
    silent               INTEGER NOT NULL DEFAULT 0,
    closed_by            TEXT NOT NULL,
    category_id          TEXT,
    category_name        TEXT,
    required_permissions TEXT
);

CREATE TABLE IF NOT EXISTS staff_alerts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    staff_user_id   INTEGER NOT NULL,
    thread_user_id  INTEGER NOT NULL,
    used            INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_staff_alerts_pending
    ON staff_alerts(staff_user_id, thread_user_id) WHERE used = 0;
CREATE INDEX IF NOT EXISTS idx_staff_alerts_thread_user ON staff_alerts(thread_user_id, used);

-- attachment_hashes lets the mirror flag a re-uploaded attachment (same
-- content re-sent across an edit/resend cycle) without storing the bytes.
CREATE TABLE IF NOT EXISTS attachment_hashes (
    hash          TEXT NOT NULL,
    thread_id     TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
    first_seen_at INTEGER NOT NULL,
    PRIMARY KEY (thread_id, hash)
);
`
