package search

import "github.com/Divas-Gupta30/ragflow/internal/meta"

const (
	maxArticles    = 4
	maxVideos      = 2
	maxShortVideos = 3
)

// Answer is the provider's direct answer, when it has one.
type Answer struct {
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	Link      string `json:"link,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type Article struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
	Favicon string `json:"favicon,omitempty"`
}

type Video struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	VideoURL  string `json:"video_url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Source    string `json:"source,omitempty"`
}

type ShortVideo struct {
	Video
	Profile    string `json:"profile,omitempty"`
	SourceLogo string `json:"source_logo,omitempty"`
}

// Bundle is the normalised result of one web search.
type Bundle struct {
	Query       string       `json:"query"`
	Answer      *Answer      `json:"answer"`
	Articles    []Article    `json:"articles"`
	Videos      []Video      `json:"videos"`
	ShortVideos []ShortVideo `json:"short_videos"`
}

// serpResult is the subset of a SerpAPI response the bundle is built from.
type serpResult struct {
	AnswerBox *struct {
		Answer    string `json:"answer"`
		Title     string `json:"title"`
		Link      string `json:"link"`
		Thumbnail string `json:"thumbnail"`
	} `json:"answer_box"`
	AIOverview *struct {
		TextBlocks []struct {
			Snippet string `json:"snippet"`
		} `json:"text_blocks"`
	} `json:"ai_overview"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Source      struct {
			Link string `json:"link"`
		} `json:"source"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Title     string `json:"title"`
		Link      string `json:"link"`
		Snippet   string `json:"snippet"`
		Source    string `json:"source"`
		Favicon   string `json:"favicon"`
		VideoLink string `json:"video_link"`
		Thumbnail string `json:"thumbnail"`
		Duration  string `json:"duration"`
	} `json:"organic_results"`
	ShortVideos []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Clip        string `json:"clip"`
		Thumbnail   string `json:"thumbnail"`
		Duration    string `json:"duration"`
		Source      string `json:"source"`
		ProfileName string `json:"profile_name"`
		SourceLogo  string `json:"source_logo"`
	} `json:"short_videos"`
}

func buildBundle(query string, r *serpResult) *Bundle {
	b := &Bundle{
		Query:       query,
		Answer:      extractAnswer(r),
		Articles:    []Article{},
		Videos:      []Video{},
		ShortVideos: []ShortVideo{},
	}

	organic := r.OrganicResults
	for i, item := range organic {
		if i >= maxArticles {
			break
		}
		if item.VideoLink != "" {
			continue
		}
		b.Articles = append(b.Articles, Article{
			Title:   item.Title,
			Snippet: item.Snippet,
			URL:     item.Link,
			Source:  item.Source,
			Favicon: item.Favicon,
		})
	}

	for _, item := range organic {
		if len(b.Videos) >= maxVideos {
			break
		}
		if item.VideoLink == "" && item.Thumbnail == "" {
			continue
		}
		b.Videos = append(b.Videos, Video{
			Title:     item.Title,
			URL:       item.Link,
			VideoURL:  firstNonEmpty(item.VideoLink, item.Link),
			Thumbnail: item.Thumbnail,
			Duration:  item.Duration,
			Source:    item.Source,
		})
	}

	for i, item := range r.ShortVideos {
		if i >= maxShortVideos {
			break
		}
		b.ShortVideos = append(b.ShortVideos, ShortVideo{
			Video: Video{
				Title:     item.Title,
				URL:       item.Link,
				VideoURL:  firstNonEmpty(item.Clip, item.Link),
				Thumbnail: item.Thumbnail,
				Duration:  item.Duration,
				Source:    item.Source,
			},
			Profile:    item.ProfileName,
			SourceLogo: item.SourceLogo,
		})
	}
	return b
}

// extractAnswer prefers the answer box, then the AI overview, then the
// knowledge graph.
func extractAnswer(r *serpResult) *Answer {
	if box := r.AnswerBox; box != nil && box.Answer != "" {
		return &Answer{Text: box.Answer, Source: box.Title, Link: box.Link, Thumbnail: box.Thumbnail}
	}
	if ov := r.AIOverview; ov != nil && len(ov.TextBlocks) > 0 && ov.TextBlocks[0].Snippet != "" {
		return &Answer{Text: ov.TextBlocks[0].Snippet, Source: "AI Overview"}
	}
	if kg := r.KnowledgeGraph; kg != nil && kg.Description != "" {
		return &Answer{Text: kg.Description, Source: kg.Title, Link: kg.Source.Link}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Value converts the bundle into message metadata.
func (b *Bundle) Value() meta.Value {
	if b == nil {
		return meta.Null()
	}
	answer := meta.Null()
	if b.Answer != nil {
		answer = meta.Map(map[string]meta.Value{
			"text":      meta.String(b.Answer.Text),
			"source":    meta.StringOrNull(b.Answer.Source),
			"link":      meta.StringOrNull(b.Answer.Link),
			"thumbnail": meta.StringOrNull(b.Answer.Thumbnail),
		})
	}

	articles := make([]meta.Value, len(b.Articles))
	for i, a := range b.Articles {
		articles[i] = meta.Map(map[string]meta.Value{
			"type":    meta.String("article"),
			"title":   meta.String(a.Title),
			"snippet": meta.String(a.Snippet),
			"url":     meta.String(a.URL),
			"source":  meta.StringOrNull(a.Source),
			"favicon": meta.StringOrNull(a.Favicon),
		})
	}
	videos := make([]meta.Value, len(b.Videos))
	for i, v := range b.Videos {
		videos[i] = meta.Map(videoFields("video", v))
	}
	shorts := make([]meta.Value, len(b.ShortVideos))
	for i, v := range b.ShortVideos {
		fields := videoFields("short_video", v.Video)
		fields["profile"] = meta.StringOrNull(v.Profile)
		fields["source_logo"] = meta.StringOrNull(v.SourceLogo)
		shorts[i] = meta.Map(fields)
	}

	return meta.Map(map[string]meta.Value{
		"type":         meta.String("search"),
		"query":        meta.String(b.Query),
		"answer":       answer,
		"articles":     meta.List(articles...),
		"videos":       meta.List(videos...),
		"short_videos": meta.List(shorts...),
	})
}

func videoFields(typ string, v Video) map[string]meta.Value {
	return map[string]meta.Value{
		"type":      meta.String(typ),
		"title":     meta.String(v.Title),
		"url":       meta.String(v.URL),
		"video_url": meta.String(v.VideoURL),
		"thumbnail": meta.StringOrNull(v.Thumbnail),
		"duration":  meta.StringOrNull(v.Duration),
		"source":    meta.StringOrNull(v.Source),
	}
}
