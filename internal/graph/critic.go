package graph

import (
	"context"
	"strings"
)

// UnavailableAnswer replaces a response that carried no text.
const UnavailableAnswer = "I'm sorry, the information needed to answer this question is unavailable."

// CriticNode makes sure a finished answer is never empty.
func CriticNode(_ context.Context, s *State) error {
	s.Answer = strings.TrimSpace(s.Answer)
	if s.Answer == "" {
		s.Answer = UnavailableAnswer
	}
	return nil
}
