package domain

import "time"

// Card is a single front/back flashcard together with its scheduling
// state. The scheduling fields (Interval, Repetition, EaseFactor,
// NextReview) are written only when a review is recorded; content edits
// never touch them.
type Card struct {
	ID     string `json:"id"`
	DeckID string `json:"deck_id"`
	Front  string `json:"front"`
	Back   string `json:"back"`

	// Fingerprint is a content hash set for imported cards so repeat
	// imports of the same material do not duplicate them. Empty for
	// cards created through the API.
	Fingerprint string `json:"-"`


	Interval   int       `json:"interval"`
	Repetition int       `json:"repetition"`
	EaseFactor float64   `json:"ease_factor"`
	NextReview time.Time `json:"next_review"`
	CreatedAt  time.Time `json:"created_at"`
}

// Deck groups cards. Deleting a deck removes its cards with it.
type Deck struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Subject    string    `json:"subject,omitempty"`
	Level      string    `json:"level,omitempty"`
	IsPublic   bool      `json:"is_public"`
	ShareToken string    `json:"share_token,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReviewLog records a single review event for a card.
// Quality is the learner's self-reported recall score, 0 (blackout)
// through 5 (perfect).
type ReviewLog struct {
	CardID     string    `json:"card_id"`
	Quality    int       `json:"quality"`
	ReviewedAt time.Time `json:"reviewed_at"`
}
