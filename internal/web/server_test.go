package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"studydeck/internal/domain"
	"studydeck/internal/importer"
	"studydeck/internal/scheduler"
	"studydeck/internal/storage"
	"studydeck/internal/study"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewServer(db, study.New(db), importer.New(db, t.TempDir()), Config{SessionLimit: 20})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createDeck(t *testing.T, s *Server) domain.Deck {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks", map[string]any{
		"title":   "Spanish Vocabulary",
		"subject": "Spanish",
		"level":   "Beginner",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deck: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Deck](t, rec)
}

func createCard(t *testing.T, s *Server, deckID, front, back string) domain.Card {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks/"+deckID+"/cards", map[string]string{
		"front": front,
		"back":  back,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Card](t, rec)
}

func TestDeckCRUD(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get deck: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/v1/decks/"+deck.ID, map[string]string{"title": "Updated"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update deck: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[domain.Deck](t, rec)
	if updated.Title != "Updated" || updated.Subject != "Spanish" {
		t.Errorf("partial update went wrong: %+v", updated)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete deck: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/decks/"+deck.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateDeckValidation(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks", map[string]string{"subject": "No title"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing title, got %d", rec.Code)
	}
}

func TestReviewCard(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	card := createCard(t, s, deck.ID, "Hello", "Hola")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"quality": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("review: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	reviewed := decodeBody[domain.Card](t, rec)
	if reviewed.Interval != 1 || reviewed.Repetition != 1 {
		t.Errorf("expected interval 1 repetition 1, got %+v", reviewed)
	}
	if reviewed.EaseFactor != scheduler.InitialEase {
		t.Errorf("quality 4 should not change ease, got %f", reviewed.EaseFactor)
	}

	// Quality zero is a legal (failing) score, not a missing field.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"quality": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("review quality 0: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	failed := decodeBody[domain.Card](t, rec)
	if failed.Repetition != 0 || failed.Interval != 1 {
		t.Errorf("failed review should reset, got %+v", failed)
	}

	logs := doJSON(t, s, http.MethodGet, "/api/v1/cards/"+card.ID+"/reviews", nil)
	if logs.Code != http.StatusOK {
		t.Fatalf("reviews: expected 200, got %d", logs.Code)
	}
	history := decodeBody[[]domain.ReviewLog](t, logs)
	if len(history) != 2 {
		t.Errorf("expected 2 review log entries, got %d", len(history))
	}
}

func TestReviewCardRejectsBadQuality(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	card := createCard(t, s, deck.ID, "Q", "A")

	for _, body := range []map[string]int{{"quality": 6}, {"quality": -1}} {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("quality %d: expected 400, got %d", body["quality"], rec.Code)
		}
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing quality: expected 400, got %d", rec.Code)
	}
}

func TestReviewUnknownCard(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/nope/review", map[string]int{"quality": 3})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStartSession(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	for i := 0; i < 5; i++ {
		createCard(t, s, deck.ID, fmt.Sprintf("Q%d", i), fmt.Sprintf("A%d", i))
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	session := decodeBody[study.Session](t, rec)
	if session.DeckID != deck.ID || session.TotalCards != 5 {
		t.Errorf("unexpected session: %+v", session)
	}
	if len(session.DueCards) != 5 {
		t.Errorf("expected 5 due cards, got %d", len(session.DueCards))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID+"?limit=2", nil)
	session = decodeBody[study.Session](t, rec)
	if len(session.DueCards) != 2 || session.TotalCards != 5 {
		t.Errorf("limited session went wrong: %+v", session)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID+"?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestDueCardsEndpoint(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	for i := 0; i < 3; i++ {
		createCard(t, s, deck.ID, fmt.Sprintf("Q%d", i), fmt.Sprintf("A%d", i))
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID+"/due?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("due: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cards := decodeBody[[]domain.Card](t, rec)
	if len(cards) != 2 {
		t.Errorf("expected 2 due cards, got %d", len(cards))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID+"/due?limit=0", nil)
	empty := decodeBody[[]domain.Card](t, rec)
	if len(empty) != 0 {
		t.Errorf("limit 0 should return no cards, got %d", len(empty))
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/study/missing/due", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown deck, got %d", rec.Code)
	}
}

func TestDeckStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/study/"+deck.ID+"/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	stats := decodeBody[study.Stats](t, rec)
	if stats.DeckID != deck.ID || stats.TotalCards != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AverageEaseFactor != scheduler.InitialEase {
		t.Errorf("expected default ease on empty deck, got %f", stats.AverageEaseFactor)
	}
}

func TestShareDeck(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	createCard(t, s, deck.ID, "Q", "A")

	rec := doJSON(t, s, http.MethodPost, "/api/v1/decks/"+deck.ID+"/share", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("share: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	share := decodeBody[shareResponse](t, rec)
	if share.ShareToken == "" || !share.IsPublic {
		t.Fatalf("unexpected share response: %+v", share)
	}

	// Sharing again reuses the token.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/decks/"+deck.ID+"/share", nil)
	again := decodeBody[shareResponse](t, rec)
	if again.ShareToken != share.ShareToken {
		t.Errorf("expected stable token, got %q then %q", share.ShareToken, again.ShareToken)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/decks/shared/"+share.ShareToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("shared deck: expected 200, got %d", rec.Code)
	}
	shared := decodeBody[deckWithCards](t, rec)
	if shared.ID != deck.ID || len(shared.Cards) != 1 {
		t.Errorf("unexpected shared deck: %+v", shared)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/decks/shared/bogus", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown token, got %d", rec.Code)
	}
}

func TestDeleteDeckRemovesCards(t *testing.T) {
	s := newTestServer(t)
	deck := createDeck(t, s)
	card := createCard(t, s, deck.ID, "Q", "A")

	doJSON(t, s, http.MethodDelete, "/api/v1/decks/"+deck.ID, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/cards/"+card.ID+"/review", map[string]int{"quality": 3})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for card of deleted deck, got %d", rec.Code)
	}
}
