// Package parser extracts flashcards from markdown files. A card is a
// "Q:" block followed by an "A:" block; either block may span multiple
// lines, and "---" or a new "Q:" starts the next card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"studydeck/internal/domain"
)

const (
	frontPrefix = "Q:"
	backPrefix  = "A:"
	separator   = "---"
)

type section int

const (
	sectionNone section = iota
	sectionFront
	sectionBack
)

// ParseFile reads the file at path and extracts all cards from it.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from r and extracts all cards. Cards missing either side
// are dropped; they cannot be reviewed.
func Parse(r io.Reader) ([]domain.Card, error) {
	var (
		cards   []domain.Card
		front   []string
		back    []string
		current = sectionNone
	)

	flush := func() {
		f := strings.TrimSpace(strings.Join(front, "\n"))
		b := strings.TrimSpace(strings.Join(back, "\n"))
		if f != "" && b != "" {
			cards = append(cards, domain.Card{Front: f, Back: b})
		}
		front, back = nil, nil
		current = sectionNone
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == separator:
			flush()
		case strings.HasPrefix(line, frontPrefix):
			if current != sectionNone {
				flush()
			}
			current = sectionFront
			front = append(front, strings.TrimSpace(line[len(frontPrefix):]))
		case strings.HasPrefix(line, backPrefix):
			current = sectionBack
			back = append(back, strings.TrimSpace(line[len(backPrefix):]))
		case current == sectionFront:
			front = append(front, line)
		case current == sectionBack:
			back = append(back, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}
