package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"studydeck/internal/domain"
	"studydeck/internal/scheduler"
)

// Sentinel errors for missing rows. "Not found" is not transient, so
// callers propagate these rather than retry.
var (
	ErrDeckNotFound = errors.New("deck not found")
	ErrCardNotFound = errors.New("card not found")
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up
// to date. Foreign keys must be enabled per connection for the
// deck-to-card cascade to fire. Transactions take the write lock at
// BEGIN (_txlock=immediate): the review read-modify-write upgrades
// from read to write mid-transaction, and deferred transactions doing
// that can deadlock against each other instead of queueing on the
// busy timeout.
func Open(dsn string) (*DB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// --- Decks ---

// CreateDeck inserts a new deck.
func (db *DB) CreateDeck(ctx context.Context, deck domain.Deck) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (id, title, subject, level, is_public, share_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		deck.ID,
		deck.Title,
		nullString(deck.Subject),
		nullString(deck.Level),
		deck.IsPublic,
		nullString(deck.ShareToken),
		deck.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
	}
	return nil
}

// GetDeck retrieves a deck by ID.
func (db *DB) GetDeck(ctx context.Context, id string) (domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, title, subject, level, is_public, share_token, created_at
		FROM decks WHERE id = ?
	`, id)

	deck, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Deck{}, ErrDeckNotFound
		}
		return domain.Deck{}, fmt.Errorf("failed to get deck %s: %w", id, err)
	}
	return deck, nil
}

// GetDeckByShareToken resolves a shared deck by its token.
func (db *DB) GetDeckByShareToken(ctx context.Context, token string) (domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, title, subject, level, is_public, share_token, created_at
		FROM decks WHERE share_token = ?
	`, token)

	deck, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Deck{}, ErrDeckNotFound
		}
		return domain.Deck{}, fmt.Errorf("failed to get deck by share token: %w", err)
	}
	return deck, nil
}

// DeckFilter narrows ListDecks. Zero values mean "no filter".
type DeckFilter struct {
	Subject    string
	Level      string
	PublicOnly bool
}

// ListDecks returns decks matching the filter, newest first.
func (db *DB) ListDecks(ctx context.Context, filter DeckFilter) ([]domain.Deck, error) {
	query := `
		SELECT id, title, subject, level, is_public, share_token, created_at
		FROM decks`
	var clauses []string
	var args []any
	if filter.PublicOnly {
		clauses = append(clauses, "is_public = 1")
	}
	if filter.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, filter.Level)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		deck, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

// UpdateDeck overwrites a deck's metadata.
func (db *DB) UpdateDeck(ctx context.Context, deck domain.Deck) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE decks
		SET title = ?, subject = ?, level = ?, is_public = ?, share_token = ?
		WHERE id = ?
	`,
		deck.Title,
		nullString(deck.Subject),
		nullString(deck.Level),
		deck.IsPublic,
		nullString(deck.ShareToken),
		deck.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deck %s: %w", deck.ID, err)
	}
	return requireRow(res, ErrDeckNotFound)
}

// DeleteDeck removes a deck; its cards go with it via the FK cascade.
func (db *DB) DeleteDeck(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	return requireRow(res, ErrDeckNotFound)
}

// --- Cards ---

const cardColumns = `id, deck_id, front, back, fingerprint, interval, repetition, ease_factor, next_review, created_at`

// CreateCard inserts a new card with whatever scheduling state it
// carries; callers initialize fresh cards with scheduler.NewState.
func (db *DB) CreateCard(ctx context.Context, card domain.Card) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.DeckID,
		card.Front,
		card.Back,
		nullString(card.Fingerprint),
		card.Interval,
		card.Repetition,
		card.EaseFactor,
		card.NextReview,
		card.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// GetCard retrieves a card by ID.
func (db *DB) GetCard(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE id = ?
	`, id)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, ErrCardNotFound
		}
		return domain.Card{}, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return card, nil
}

// GetCardsByDeck returns every card in a deck.
func (db *DB) GetCardsByDeck(ctx context.Context, deckID string) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE deck_id = ? ORDER BY created_at, id
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for deck %s: %w", deckID, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// FindCardByFingerprint looks up an imported card by its content hash
// within a deck.
func (db *DB) FindCardByFingerprint(ctx context.Context, deckID, fingerprint string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE deck_id = ? AND fingerprint = ?
	`, deckID, fingerprint)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, ErrCardNotFound
		}
		return domain.Card{}, fmt.Errorf("failed to find card by fingerprint in deck %s: %w", deckID, err)
	}
	return card, nil
}

// UpdateCardContent changes a card's front/back text. The scheduling
// columns are deliberately not part of this statement; only
// UpdateCardReview may touch them.
func (db *DB) UpdateCardContent(ctx context.Context, id, front, back string) (domain.Card, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards SET front = ?, back = ? WHERE id = ?
	`, front, back, id)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	if err := requireRow(res, ErrCardNotFound); err != nil {
		return domain.Card{}, err
	}
	return db.GetCard(ctx, id)
}

// DeleteCard removes a card by ID.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return requireRow(res, ErrCardNotFound)
}

// CountCards returns the number of cards in a deck.
func (db *DB) CountCards(ctx context.Context, deckID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards WHERE deck_id = ?
	`, deckID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards for deck %s: %w", deckID, err)
	}
	return n, nil
}

// DueCards returns up to limit cards in the deck whose next review is
// at or before now, soonest first with the card ID as tiebreaker so
// repeated calls return the same order. A limit of zero or less yields
// an empty result; it is also a guard, since SQLite treats a negative
// LIMIT as unlimited.
func (db *DB) DueCards(ctx context.Context, deckID string, now time.Time, limit int) ([]domain.Card, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE deck_id = ? AND next_review <= ?
		ORDER BY next_review, id
		LIMIT ?
	`, deckID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards for deck %s: %w", deckID, err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// DeckStats is the per-deck scheduling distribution.
type DeckStats struct {
	TotalCards        int     `json:"total_cards"`
	CardsDue          int     `json:"cards_due"`
	CardsLearning     int     `json:"cards_learning"`
	CardsMastered     int     `json:"cards_mastered"`
	AverageEaseFactor float64 `json:"average_ease_factor"`
}

// GetDeckStats computes the distribution in a single statement so the
// counts reflect one consistent snapshot. An empty deck reports the
// initial ease as its average.
func (db *DB) GetDeckStats(ctx context.Context, deckID string, now time.Time) (DeckStats, error) {
	var stats DeckStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN next_review <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN interval = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN interval >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(ease_factor), ?)
		FROM cards WHERE deck_id = ?
	`, now, scheduler.MasteryInterval, scheduler.InitialEase, deckID).Scan(
		&stats.TotalCards,
		&stats.CardsDue,
		&stats.CardsLearning,
		&stats.CardsMastered,
		&stats.AverageEaseFactor,
	)
	if err != nil {
		return DeckStats{}, fmt.Errorf("failed to get stats for deck %s: %w", deckID, err)
	}
	return stats, nil
}

// UpdateCardReview applies a review to a card as one transactional
// read-modify-write: the current scheduling state is loaded, passed to
// review, and the result persisted together with a review log entry.
// Concurrent submissions for the same card serialize on the write
// transaction, so neither update is lost. If review fails, nothing is
// written.
func (db *DB) UpdateCardReview(ctx context.Context, cardID string, quality int, reviewedAt time.Time, review func(scheduler.State) (scheduler.State, error)) (domain.Card, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE id = ?
	`, cardID)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, ErrCardNotFound
		}
		return domain.Card{}, fmt.Errorf("failed to load card %s for review: %w", cardID, err)
	}

	state := scheduler.State{
		Interval:   card.Interval,
		Repetition: card.Repetition,
		EaseFactor: card.EaseFactor,
		NextReview: card.NextReview,
	}
	newState, err := review(state)
	if err != nil {
		return domain.Card{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET interval = ?, repetition = ?, ease_factor = ?, next_review = ?
		WHERE id = ?
	`,
		newState.Interval,
		newState.Repetition,
		newState.EaseFactor,
		newState.NextReview,
		cardID,
	); err != nil {
		return domain.Card{}, fmt.Errorf("failed to update review state for card %s: %w", cardID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, quality, reviewed_at)
		VALUES (?, ?, ?)
	`, cardID, quality, reviewedAt); err != nil {
		return domain.Card{}, fmt.Errorf("failed to log review for card %s: %w", cardID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Card{}, fmt.Errorf("failed to commit review for card %s: %w", cardID, err)
	}

	card.Interval = newState.Interval
	card.Repetition = newState.Repetition
	card.EaseFactor = newState.EaseFactor
	card.NextReview = newState.NextReview
	return card, nil
}

// GetReviewLogs returns a card's review history, oldest first.
func (db *DB) GetReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, quality, reviewed_at
		FROM review_logs WHERE card_id = ?
		ORDER BY reviewed_at, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		if err := rows.Scan(&l.CardID, &l.Quality, &l.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeck(row rowScanner) (domain.Deck, error) {
	var (
		deck       domain.Deck
		subject    sql.NullString
		level      sql.NullString
		shareToken sql.NullString
	)
	err := row.Scan(&deck.ID, &deck.Title, &subject, &level, &deck.IsPublic, &shareToken, &deck.CreatedAt)
	if err != nil {
		return domain.Deck{}, err
	}
	deck.Subject = subject.String
	deck.Level = level.String
	deck.ShareToken = shareToken.String
	return deck, nil
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		card        domain.Card
		fingerprint sql.NullString
	)
	err := row.Scan(
		&card.ID,
		&card.DeckID,
		&card.Front,
		&card.Back,
		&fingerprint,
		&card.Interval,
		&card.Repetition,
		&card.EaseFactor,
		&card.NextReview,
		&card.CreatedAt,
	)
	if err != nil {
		return domain.Card{}, err
	}
	card.Fingerprint = fingerprint.String
	return card, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
