package processing

import "fmt"

// Page is the text of one page of a source document. Number is zero-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a piece of a page ready for embedding.
type Chunk struct {
	ID      string
	Source  string
	Page    int
	Index   int
	Content string
}

// ChunkID is deterministic so re-ingesting a document yields the same ids.
func ChunkID(source string, page, index int) string {
	return fmt.Sprintf("%s:%d:%d", source, page, index)
}

// ChunkPages splits every page separately; the index restarts on each page.
func ChunkPages(source string, pages []Page, s *Splitter) []Chunk {
	var out []Chunk
	for _, p := range pages {
		for i, text := range s.Split(p.Text) {
			out = append(out, Chunk{
				ID:      ChunkID(source, p.Number, i),
				Source:  source,
				Page:    p.Number,
				Index:   i,
				Content: text,
			})
		}
	}
	return out
}
