package parser

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedFront string
		expectedBack  string
	}{
		{
			name:          "simple card",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedFront: "What is the capital of France?",
			expectedBack:  "Paris",
		},
		{
			name: "multiline back",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedFront: "What are the primary colors?",
			expectedBack:  "Red\nBlue\nYellow",
		},
		{
			name: "separator between cards",
			input: `
Q: First question
A: First answer
---
Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "new question starts a new card",
			input: `
Q: First question
A: First answer
Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name:          "no cards, just text",
			input:         "This file has no flashcards in it.",
			expectedCards: 0,
		},
		{
			name:          "question without an answer is dropped",
			input:         "Q: Orphaned question\n---\nQ: Complete\nA: Yes",
			expectedCards: 1,
			expectedFront: "Complete",
			expectedBack:  "Yes",
		},
		{
			name:          "prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedFront: "Question",
			expectedBack:  "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 && tc.expectedFront != "" {
				card := cards[0]
				if card.Front != tc.expectedFront {
					t.Errorf("Expected front %q, but got %q", tc.expectedFront, card.Front)
				}
				if card.Back != tc.expectedBack {
					t.Errorf("Expected back %q, but got %q", tc.expectedBack, card.Back)
				}
			}
		})
	}
}
