package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Divas-Gupta30/ragflow/internal/search"
)

// Compose merges document and web context into the text handed to the
// model. Either part may be missing; with neither it returns "".
func Compose(ragContext string, web *search.Bundle) string {
	var sections []string
	if ragContext != "" {
		sections = append(sections, "DOCUMENT CONTEXT:\n"+ragContext)
	}
	if web != nil && len(web.Articles) > 0 {
		var b strings.Builder
		b.WriteString("WEB CONTEXT:")
		for _, a := range web.Articles {
			fmt.Fprintf(&b, "\n- %s: %s (%s)", a.Title, a.Snippet, a.URL)
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}

func ComposeNode(_ context.Context, s *State) error {
	s.Context = Compose(s.RAGContext, s.Web)
	return nil
}
