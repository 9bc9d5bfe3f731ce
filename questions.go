package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// Question is one entry from the question file.
type Question struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// loadQuestions reads and validates the question file. The game cannot run
// without it, so any problem here keeps the process from starting.
func loadQuestions(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question file: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parsing question file %s: %w", path, err)
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("question file %s contains no questions", path)
	}

	for i, q := range questions {
		if q.Text == "" {
			return nil, fmt.Errorf("question %d in %s has no text", i, path)
		}
	}

	return questions, nil
}

// shuffleQuestions returns a copy of qs in a fresh random order, leaving
// the source list untouched. Each room gets its own permutation, fixed
// for the lifetime of its session.
func shuffleQuestions(qs []Question) []Question {
	shuffled := make([]Question, len(qs))
	copy(shuffled, qs)

	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled
}
