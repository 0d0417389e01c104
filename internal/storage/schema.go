package storage

const schema = `
-- Decks group flashcards. A deck owns its cards outright: deleting the
-- deck cascades to them.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    subject TEXT,
    level TEXT,
    is_public INTEGER NOT NULL DEFAULT 0,
    share_token TEXT UNIQUE,
    created_at DATETIME NOT NULL
);

-- Cards carry their content and scheduling state side by side. The
-- scheduling columns are written only by review updates.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    fingerprint TEXT,
    interval INTEGER NOT NULL DEFAULT 0,
    repetition INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    next_review DATETIME NOT NULL,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

-- The due-card query filters on deck and due time and orders by
-- (next_review, id); this index serves it directly.
CREATE INDEX IF NOT EXISTS idx_cards_deck_due ON cards(deck_id, next_review, id);

-- Imported cards are deduplicated per deck by content fingerprint.
CREATE INDEX IF NOT EXISTS idx_cards_deck_fingerprint ON cards(deck_id, fingerprint);

-- One row per accepted review.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    quality INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);
`
