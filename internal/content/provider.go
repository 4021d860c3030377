// Package content supplies immutable question decks to the room engine.
package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeckNotFound means the deck id is unknown to this provider.
var ErrDeckNotFound = errors.New("deck not found")

// Question is one immutable question as stored in a deck.
type Question struct {
	Prompt       string   `yaml:"prompt" json:"prompt"`
	Choices      []string `yaml:"choices" json:"choices"`
	CorrectIndex int      `yaml:"correct_index" json:"correct_index"`
}

// Deck is an ordered list of questions under a stable id.
type Deck struct {
	ID        string     `yaml:"id" json:"id"`
	Title     string     `yaml:"title" json:"title"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// Provider hands out question content by deck id and round index.
// Implementations must return the same content for the same (deck, index)
// for the lifetime of the process.
type Provider interface {
	Question(ctx context.Context, deckID string, index int) (*Question, error)
	DeckSize(ctx context.Context, deckID string) (int, error)
}

// Static is an in-memory Provider backed by a fixed deck map. Used in tests
// and as the fallback when no deck directory is configured.
type Static struct {
	decks map[string]Deck
}

// NewStatic builds a Static provider from the given decks.
func NewStatic(decks ...Deck) *Static {
	m := make(map[string]Deck, len(decks))
	for _, d := range decks {
		m[d.ID] = d
	}
	return &Static{decks: m}
}

func (s *Static) Question(_ context.Context, deckID string, index int) (*Question, error) {
	deck, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	if index < 0 || index >= len(deck.Questions) {
		return nil, fmt.Errorf("deck %s has no question at index %d", deckID, index)
	}
	q := deck.Questions[index]
	return &q, nil
}

func (s *Static) DeckSize(_ context.Context, deckID string) (int, error) {
	deck, ok := s.decks[deckID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	return len(deck.Questions), nil
}
