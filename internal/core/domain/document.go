package domain

import "time"

type Author struct {
	Name         string   `json:"name"`
	Affiliations []string `json:"affiliations,omitempty"`
}

// Article is the relational record scraped from PubMed.
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Abstract    string     `json:"abstract"`
	Journal     string     `json:"journal,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	URL         string     `json:"url,omitempty"`
	Authors     []Author   `json:"authors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Document is the immutable retrieval unit written to the search index.
// ID is the PubMed id and doubles as the join key back to Article.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Abstract  string    `json:"abstract"`
	Embedding []float32 `json:"-"`
}

func (a Article) Document() Document {
	return Document{
		ID:       a.ID,
		Title:    a.Title,
		Abstract: a.Abstract,
	}
}

// Text is the passage a cross-encoder or embedder sees for the document.
func (d Document) Text() string {
	switch {
	case d.Title == "":
		return d.Abstract
	case d.Abstract == "":
		return d.Title
	default:
		return d.Title + " " + d.Abstract
	}
}
