package models

import "time"

// Page is the result of one fetch: the extracted plain text plus the
// metadata that travels with every chunk split from it.
type Page struct {
	URL           string    `json:"url" badgerhold:"key"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Keywords      string    `json:"keywords"`
	Text          string    `json:"text"`
	Markdown      string    `json:"markdown,omitempty"`
	ContentLength int       `json:"content_length"`
	StatusCode    int       `json:"status_code"`
	ContentType   string    `json:"content_type"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Metadata returns the page-level fields in the shape attached to chunks.
func (p *Page) Metadata() PageMetadata {
	return PageMetadata{
		URL:           p.URL,
		Title:         p.Title,
		Description:   p.Description,
		Keywords:      p.Keywords,
		ContentLength: p.ContentLength,
		StatusCode:    p.StatusCode,
		ContentType:   p.ContentType,
		FetchedAt:     p.FetchedAt,
	}
}

// PageMetadata is the source-document portion of chunk metadata.
type PageMetadata struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Keywords      string    `json:"keywords,omitempty"`
	ContentLength int       `json:"content_length"`
	StatusCode    int       `json:"status_code,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}
