// Package importer loads flashcards into a deck from markdown sources:
// either a local directory or a git repository of .md files. Imports
// are additive and deduplicated by content fingerprint, so running the
// same import twice adds nothing and never touches review state.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studydeck/internal/domain"
	"studydeck/internal/fingerprint"
	"studydeck/internal/gitsource"
	"studydeck/internal/parser"
	"studydeck/internal/scheduler"
	"studydeck/internal/storage"
)

// Importer reconciles markdown sources into decks.
type Importer struct {
	store    *storage.DB
	reposDir string
}

// New creates an importer. reposDir is where git sources are checked
// out.
func New(store *storage.DB, reposDir string) *Importer {
	return &Importer{store: store, reposDir: reposDir}
}

// Result summarizes one import run.
type Result struct {
	CardsParsed  int      `json:"cards_parsed"`
	CardsAdded   int      `json:"cards_added"`
	CardsSkipped int      `json:"cards_skipped"`
	Errors       []string `json:"errors,omitempty"`
}

// ImportSource imports all cards found under source into the deck.
// A source ending in .git or using a git/https scheme is cloned (or
// pulled) first; anything else is treated as a local directory.
func (im *Importer) ImportSource(ctx context.Context, deckID, source string) (Result, error) {
	if _, err := im.store.GetDeck(ctx, deckID); err != nil {
		return Result{}, err
	}

	dir := source
	if IsGitSource(source) {
		localPath, err := checkoutPath(im.reposDir, source)
		if err != nil {
			return Result{}, err
		}
		if err := gitsource.Sync(ctx, source, localPath); err != nil {
			return Result{}, err
		}
		dir = localPath
	}

	return im.importDir(ctx, deckID, dir)
}

func (im *Importer) importDir(ctx context.Context, deckID, dir string) (Result, error) {
	var result Result
	now := time.Now().UTC()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("parsing %s: %v", path, parseErr))
			return nil
		}

		for _, card := range cards {
			result.CardsParsed++
			fp := fingerprint.Of(card.Front, card.Back)

			_, findErr := im.store.FindCardByFingerprint(ctx, deckID, fp)
			if findErr == nil {
				result.CardsSkipped++
				continue
			}
			if !errors.Is(findErr, storage.ErrCardNotFound) {
				result.Errors = append(result.Errors, fmt.Sprintf("checking %s: %v", fp, findErr))
				continue
			}

			state := scheduler.NewState(now)
			newCard := domain.Card{
				ID:          uuid.NewString(),
				DeckID:      deckID,
				Front:       card.Front,
				Back:        card.Back,
				Fingerprint: fp,
				Interval:    state.Interval,
				Repetition:  state.Repetition,
				EaseFactor:  state.EaseFactor,
				NextReview:  state.NextReview,
				CreatedAt:   now,
			}
			if insertErr := im.store.CreateCard(ctx, newCard); insertErr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("inserting %s: %v", fp, insertErr))
				continue
			}
			result.CardsAdded++
		}
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	slog.Info("import complete",
		"deck", deckID,
		"dir", dir,
		"parsed", result.CardsParsed,
		"added", result.CardsAdded,
		"skipped", result.CardsSkipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// IsGitSource reports whether a source string names a git repository
// rather than a local directory.
func IsGitSource(source string) bool {
	return strings.HasSuffix(source, ".git") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "http://")
}

// checkoutPath maps a repository URL to a stable local directory under
// baseDir, so repeat imports reuse the same checkout. Both https URLs
// and scp-style ssh addresses (user@host:path) are supported.
func checkoutPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		return filepath.Join(baseDir, parsed.Host, strings.TrimSuffix(parsed.Path, ".git")), nil
	}

	if at := strings.Index(repoURL, "@"); at >= 0 {
		rest := repoURL[at+1:]
		if host, path, ok := strings.Cut(rest, ":"); ok && host != "" && path != "" {
			return filepath.Join(baseDir, host, strings.TrimSuffix(path, ".git")), nil
		}
	}

	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
