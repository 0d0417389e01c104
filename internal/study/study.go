// Package study exposes the scheduling operations of the backend:
// submitting a review, selecting due cards, assembling a study session,
// and reporting per-deck statistics. All card state lives in the store;
// the scheduler computes, the store persists.
package study

import (
	"context"
	"fmt"
	"time"

	"studydeck/internal/domain"
	"studydeck/internal/scheduler"
	"studydeck/internal/storage"
)

// Service wires the pure scheduler to the card store.
type Service struct {
	store *storage.DB
	now   func() time.Time
}

// New creates a study service backed by the given store.
func New(store *storage.DB) *Service {
	return &Service{store: store, now: time.Now}
}

// Session is one study sitting: the cards currently due, capped by the
// caller's limit, plus the deck's full card count. TotalCards is always
// at least len(DueCards).
type Session struct {
	DeckID     string        `json:"deck_id"`
	DueCards   []domain.Card `json:"due_cards"`
	TotalCards int           `json:"total_cards"`
}

// Stats is a deck's scheduling distribution.
type Stats struct {
	DeckID string `json:"deck_id"`
	storage.DeckStats
}

// SubmitReview records a recall score for a card and returns the card
// with its updated scheduling state. The quality is validated before
// any transaction is opened; the read-modify-write itself is atomic per
// card, so concurrent submissions cannot lose updates.
func (s *Service) SubmitReview(ctx context.Context, cardID string, quality int) (domain.Card, error) {
	if quality < scheduler.MinQuality || quality > scheduler.MaxQuality {
		return domain.Card{}, fmt.Errorf("%w: got %d", scheduler.ErrInvalidQuality, quality)
	}

	now := s.now().UTC()
	return s.store.UpdateCardReview(ctx, cardID, quality, now, func(state scheduler.State) (scheduler.State, error) {
		return scheduler.Review(state, quality, now)
	})
}

// DueCards returns up to limit cards in the deck that are due now,
// soonest first. A non-positive limit yields an empty result. A deck
// with no due cards is not an error.
func (s *Service) DueCards(ctx context.Context, deckID string, limit int) ([]domain.Card, error) {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return nil, err
	}
	return s.store.DueCards(ctx, deckID, s.now().UTC(), limit)
}

// StartSession assembles a study session for a deck.
func (s *Service) StartSession(ctx context.Context, deckID string, limit int) (Session, error) {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	due, err := s.store.DueCards(ctx, deckID, now, limit)
	if err != nil {
		return Session{}, err
	}
	total, err := s.store.CountCards(ctx, deckID)
	if err != nil {
		return Session{}, err
	}

	return Session{DeckID: deckID, DueCards: due, TotalCards: total}, nil
}

// DeckStats reports the deck's scheduling distribution as of now.
func (s *Service) DeckStats(ctx context.Context, deckID string) (Stats, error) {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return Stats{}, err
	}
	stats, err := s.store.GetDeckStats(ctx, deckID, s.now().UTC())
	if err != nil {
		return Stats{}, err
	}
	return Stats{DeckID: deckID, DeckStats: stats}, nil
}
