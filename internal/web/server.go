// Package web is the JSON API in front of the card store and the study
// service. It owns request decoding, validation, and status mapping;
// all scheduling decisions live behind it.
package web

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"studydeck/internal/domain"
	"studydeck/internal/importer"
	"studydeck/internal/scheduler"
	"studydeck/internal/storage"
	"studydeck/internal/study"
)

// Config carries the request-independent settings of the API.
type Config struct {
	// SessionLimit is the due-card cap used when a session request
	// does not pass an explicit limit.
	SessionLimit int
	// BaseURL, when set, is used to build share links instead of the
	// request host.
	BaseURL string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	store    *storage.DB
	study    *study.Service
	importer *importer.Importer
	router   *http.ServeMux
	validate *validator.Validate
	cfg      Config
}

// NewServer creates and configures a new server.
func NewServer(store *storage.DB, studySvc *study.Service, imp *importer.Importer, cfg Config) *Server {
	s := &Server{
		store:    store,
		study:    studySvc,
		importer: imp,
		router:   http.NewServeMux(),
		validate: validator.New(),
		cfg:      cfg,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("POST /api/v1/decks", s.handleCreateDeck)
	s.router.HandleFunc("GET /api/v1/decks", s.handleListDecks)
	s.router.HandleFunc("GET /api/v1/decks/public", s.handleListPublicDecks)
	s.router.HandleFunc("GET /api/v1/decks/shared/{token}", s.handleGetSharedDeck)
	s.router.HandleFunc("GET /api/v1/decks/{id}", s.handleGetDeck)
	s.router.HandleFunc("PUT /api/v1/decks/{id}", s.handleUpdateDeck)
	s.router.HandleFunc("DELETE /api/v1/decks/{id}", s.handleDeleteDeck)
	s.router.HandleFunc("POST /api/v1/decks/{id}/share", s.handleShareDeck)
	s.router.HandleFunc("POST /api/v1/decks/{id}/import", s.handleImportDeck)
	s.router.HandleFunc("POST /api/v1/decks/{id}/cards", s.handleCreateCard)
	s.router.HandleFunc("GET /api/v1/decks/{id}/cards", s.handleListDeckCards)
	s.router.HandleFunc("PUT /api/v1/cards/{id}", s.handleUpdateCard)
	s.router.HandleFunc("DELETE /api/v1/cards/{id}", s.handleDeleteCard)
	s.router.HandleFunc("POST /api/v1/cards/{id}/review", s.handleReviewCard)
	s.router.HandleFunc("GET /api/v1/cards/{id}/reviews", s.handleCardReviews)
	s.router.HandleFunc("GET /api/v1/study/{deckId}", s.handleStartSession)
	s.router.HandleFunc("GET /api/v1/study/{deckId}/due", s.handleDueCards)
	s.router.HandleFunc("GET /api/v1/study/{deckId}/stats", s.handleDeckStats)
}

// --- request/response types ---

type createDeckRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Subject  string `json:"subject" validate:"max=100"`
	Level    string `json:"level" validate:"max=50"`
	IsPublic bool   `json:"is_public"`
}

type updateDeckRequest struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=200"`
	Subject  *string `json:"subject" validate:"omitempty,max=100"`
	Level    *string `json:"level" validate:"omitempty,max=50"`
	IsPublic *bool   `json:"is_public"`
}

type createCardRequest struct {
	Front string `json:"front" validate:"required,max=1000"`
	Back  string `json:"back" validate:"required,max=1000"`
}

type updateCardRequest struct {
	Front *string `json:"front" validate:"omitempty,min=1,max=1000"`
	Back  *string `json:"back" validate:"omitempty,min=1,max=1000"`
}

type reviewRequest struct {
	Quality *int `json:"quality" validate:"required,gte=0,lte=5"`
}

type importRequest struct {
	Source string `json:"source" validate:"required"`
}

type deckWithCards struct {
	domain.Deck
	Cards []domain.Card `json:"cards"`
}

type shareResponse struct {
	DeckID     string `json:"deck_id"`
	IsPublic   bool   `json:"is_public"`
	ShareToken string `json:"share_token"`
	ShareURL   string `json:"share_url"`
}

// --- deck handlers ---

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var req createDeckRequest
	if !s.decode(w, r, &req) {
		return
	}

	deck := domain.Deck{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Subject:   req.Subject,
		Level:     req.Level,
		IsPublic:  req.IsPublic,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDeck(r.Context(), deck); err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusCreated, deck)
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	filter := storage.DeckFilter{
		Subject: r.URL.Query().Get("subject"),
		Level:   r.URL.Query().Get("level"),
	}
	decks, err := s.store.ListDecks(r.Context(), filter)
	if err != nil {
		s.error(w, err)
		return
	}
	if decks == nil {
		decks = []domain.Deck{}
	}
	s.json(w, http.StatusOK, decks)
}

func (s *Server) handleListPublicDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.store.ListDecks(r.Context(), storage.DeckFilter{PublicOnly: true})
	if err != nil {
		s.error(w, err)
		return
	}
	if decks == nil {
		decks = []domain.Deck{}
	}
	s.json(w, http.StatusOK, decks)
}

func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	s.respondDeckWithCards(w, r, func() (domain.Deck, error) {
		return s.store.GetDeck(r.Context(), r.PathValue("id"))
	})
}

func (s *Server) handleGetSharedDeck(w http.ResponseWriter, r *http.Request) {
	s.respondDeckWithCards(w, r, func() (domain.Deck, error) {
		return s.store.GetDeckByShareToken(r.Context(), r.PathValue("token"))
	})
}

func (s *Server) respondDeckWithCards(w http.ResponseWriter, r *http.Request, load func() (domain.Deck, error)) {
	deck, err := load()
	if err != nil {
		s.error(w, err)
		return
	}
	cards, err := s.store.GetCardsByDeck(r.Context(), deck.ID)
	if err != nil {
		s.error(w, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	s.json(w, http.StatusOK, deckWithCards{Deck: deck, Cards: cards})
}

func (s *Server) handleUpdateDeck(w http.ResponseWriter, r *http.Request) {
	var req updateDeckRequest
	if !s.decode(w, r, &req) {
		return
	}

	deck, err := s.store.GetDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, err)
		return
	}
	if req.Title != nil {
		deck.Title = *req.Title
	}
	if req.Subject != nil {
		deck.Subject = *req.Subject
	}
	if req.Level != nil {
		deck.Level = *req.Level
	}
	if req.IsPublic != nil {
		deck.IsPublic = *req.IsPublic
	}
	if err := s.store.UpdateDeck(r.Context(), deck); err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusOK, deck)
}

func (s *Server) handleDeleteDeck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDeck(r.Context(), r.PathValue("id")); err != nil {
		s.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShareDeck(w http.ResponseWriter, r *http.Request) {
	deck, err := s.store.GetDeck(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, err)
		return
	}

	if deck.ShareToken == "" {
		deck.ShareToken = newShareToken()
	}
	deck.IsPublic = true
	if err := s.store.UpdateDeck(r.Context(), deck); err != nil {
		s.error(w, err)
		return
	}

	base := s.cfg.BaseURL
	if base == "" {
		base = "http://" + r.Host
	}
	s.json(w, http.StatusOK, shareResponse{
		DeckID:     deck.ID,
		IsPublic:   deck.IsPublic,
		ShareToken: deck.ShareToken,
		ShareURL:   fmt.Sprintf("%s/api/v1/decks/shared/%s", base, deck.ShareToken),
	})
}

func (s *Server) handleImportDeck(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !s.decode(w, r, &req) {
		return
	}

	// Imports run in the foreground so the caller sees the result.
	result, err := s.importer.ImportSource(r.Context(), r.PathValue("id"), req.Source)
	if err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusOK, result)
}

// --- card handlers ---

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if !s.decode(w, r, &req) {
		return
	}

	deckID := r.PathValue("id")
	if _, err := s.store.GetDeck(r.Context(), deckID); err != nil {
		s.error(w, err)
		return
	}

	now := time.Now().UTC()
	state := scheduler.NewState(now)
	card := domain.Card{
		ID:         uuid.NewString(),
		DeckID:     deckID,
		Front:      req.Front,
		Back:       req.Back,
		Interval:   state.Interval,
		Repetition: state.Repetition,
		EaseFactor: state.EaseFactor,
		NextReview: state.NextReview,
		CreatedAt:  now,
	}
	if err := s.store.CreateCard(r.Context(), card); err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusCreated, card)
}

func (s *Server) handleListDeckCards(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("id")
	if _, err := s.store.GetDeck(r.Context(), deckID); err != nil {
		s.error(w, err)
		return
	}
	cards, err := s.store.GetCardsByDeck(r.Context(), deckID)
	if err != nil {
		s.error(w, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	s.json(w, http.StatusOK, cards)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req updateCardRequest
	if !s.decode(w, r, &req) {
		return
	}

	card, err := s.store.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, err)
		return
	}
	if req.Front != nil {
		card.Front = *req.Front
	}
	if req.Back != nil {
		card.Back = *req.Back
	}
	updated, err := s.store.UpdateCardContent(r.Context(), card.ID, card.Front, card.Back)
	if err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
		s.error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	card, err := s.study.SubmitReview(r.Context(), r.PathValue("id"), *req.Quality)
	if err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusOK, card)
}

func (s *Server) handleCardReviews(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("id")
	if _, err := s.store.GetCard(r.Context(), cardID); err != nil {
		s.error(w, err)
		return
	}
	logs, err := s.store.GetReviewLogs(r.Context(), cardID)
	if err != nil {
		s.error(w, err)
		return
	}
	if logs == nil {
		logs = []domain.ReviewLog{}
	}
	s.json(w, http.StatusOK, logs)
}

// --- study handlers ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.SessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	session, err := s.study.StartSession(r.Context(), r.PathValue("deckId"), limit)
	if err != nil {
		s.error(w, err)
		return
	}
	if session.DueCards == nil {
		session.DueCards = []domain.Card{}
	}
	s.json(w, http.StatusOK, session)
}

func (s *Server) handleDueCards(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.SessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	cards, err := s.study.DueCards(r.Context(), r.PathValue("deckId"), limit)
	if err != nil {
		s.error(w, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	s.json(w, http.StatusOK, cards)
}

func (s *Server) handleDeckStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.study.DeckStats(r.Context(), r.PathValue("deckId"))
	if err != nil {
		s.error(w, err)
		return
	}
	s.json(w, http.StatusOK, stats)
}

// --- helpers ---

// decode unmarshals and validates a JSON request body, writing the
// error response itself when something is wrong.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.badRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.badRequest(w, err.Error())
		return false
	}
	return true
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, detail string) {
	s.json(w, http.StatusBadRequest, map[string]string{"detail": detail})
}

// error maps domain errors onto HTTP statuses: unknown decks and cards
// are 404, rejected review scores are 400, everything else is a 500.
func (s *Server) error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrDeckNotFound), errors.Is(err, storage.ErrCardNotFound):
		s.json(w, http.StatusNotFound, map[string]string{"detail": err.Error()})
	case errors.Is(err, scheduler.ErrInvalidQuality):
		s.badRequest(w, err.Error())
	default:
		slog.Error("request failed", "error", err)
		s.json(w, http.StatusInternalServerError, map[string]string{"detail": "internal server error"})
	}
}

// newShareToken returns a URL-safe random token for shared decks.
func newShareToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
