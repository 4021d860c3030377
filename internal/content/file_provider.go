package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileProvider loads YAML deck files from a directory at startup and serves
// them read-only. Deck files look like:
//
//	id: general-knowledge
//	title: General Knowledge
//	questions:
//	  - prompt: "Which planet is known as the Red Planet?"
//	    choices: ["Venus", "Mars", "Jupiter", "Mercury"]
//	    correct_index: 1
type FileProvider struct {
	static *Static
}

// NewFileProvider reads every *.yaml / *.yml file under dir as a deck.
func NewFileProvider(dir string) (*FileProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck directory: %w", err)
	}

	var decks []Deck
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		deck, err := loadDeckFile(path)
		if err != nil {
			return nil, err
		}
		decks = append(decks, *deck)

		log.Info().
			Str("deck_id", deck.ID).
			Int("questions", len(deck.Questions)).
			Str("file", entry.Name()).
			Msg("loaded deck")
	}

	return &FileProvider{static: NewStatic(decks...)}, nil
}

func loadDeckFile(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck file %s: %w", path, err)
	}

	var deck Deck
	if err := yaml.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("failed to parse deck file %s: %w", path, err)
	}
	if deck.ID == "" {
		return nil, fmt.Errorf("deck file %s has no id", path)
	}
	if len(deck.Questions) == 0 {
		return nil, fmt.Errorf("deck %s has no questions", deck.ID)
	}
	for i, q := range deck.Questions {
		if len(q.Choices) < 2 {
			return nil, fmt.Errorf("deck %s question %d needs at least two choices", deck.ID, i)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Choices) {
			return nil, fmt.Errorf("deck %s question %d has correct_index out of range", deck.ID, i)
		}
	}

	return &deck, nil
}

func (f *FileProvider) Question(ctx context.Context, deckID string, index int) (*Question, error) {
	return f.static.Question(ctx, deckID, index)
}

func (f *FileProvider) DeckSize(ctx context.Context, deckID string) (int, error) {
	return f.static.DeckSize(ctx, deckID)
}
