package llm

import (
	"encoding/json"
	"strings"
)

// BlockText is the only block type whose text reaches the user.
const BlockText = "text"

// Block is one typed piece of a model response.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content is a model response body: either a plain string or an ordered
// list of typed blocks.
type Content struct {
	text   string
	blocks []Block
	typed  bool
}

func PlainText(s string) Content { return Content{text: s} }

func Blocks(blocks ...Block) Content {
	return Content{blocks: append([]Block(nil), blocks...), typed: true}
}

func (c Content) IsBlocks() bool  { return c.typed }
func (c Content) Blocks() []Block { return c.blocks }

// Text returns the plain string, or the text of every "text" block joined
// by a blank line. Blocks of other types are dropped.
func (c Content) Text() string {
	if !c.typed {
		return c.text
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.typed {
		blocks := c.blocks
		if blocks == nil {
			blocks = []Block{}
		}
		return json.Marshal(blocks)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = PlainText(s)
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(b, &blocks); err != nil {
		return err
	}
	*c = Blocks(blocks...)
	return nil
}
