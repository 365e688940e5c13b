package pubmed

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kirillkom/medlit-rag/internal/core/domain"
)

var (
	spaceExpr = regexp.MustCompile(`\s+`)
	pmidExpr  = regexp.MustCompile(`^\d+$`)
	// "2021 Mar 4", "2021 Mar" or "2021" at the start of a citation line.
	citeDateExpr = regexp.MustCompile(`^\d{4}(?: [A-Z][a-z]{2}(?: \d{1,2})?)?`)
)

var citeDateLayouts = []string{"2006 Jan 2", "2006 Jan", "2006"}

func parseSearchPage(doc *goquery.Document) []string {
	ids := make([]string, 0, 10)
	doc.Find("a.docsum-title").Each(func(_ int, a *goquery.Selection) {
		id, ok := a.Attr("data-article-id")
		if !ok {
			href, _ := a.Attr("href")
			id = strings.Trim(href, "/")
		}
		id = strings.TrimSpace(id)
		if pmidExpr.MatchString(id) {
			ids = append(ids, id)
		}
	})
	return ids
}

func parseArticlePage(doc *goquery.Document) (*domain.Article, error) {
	id, _ := doc.Find(`meta[name="citation_pmid"]`).Attr("content")
	if id == "" {
		id = clean(doc.Find("#full-view-identifiers .current-id").First().Text())
	}

	title := clean(doc.Find("h1.heading-title").First().Text())
	if title == "" {
		return nil, errors.New("article page has no title")
	}

	paragraphs := make([]string, 0, 4)
	doc.Find("#eng-abstract p, div.abstract-content p").Each(func(_ int, p *goquery.Selection) {
		if text := clean(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	// Structured abstracts can match both selectors.
	paragraphs = dedupe(paragraphs)

	journal, _ := doc.Find(`meta[name="citation_journal_title"]`).Attr("content")
	if journal == "" {
		journal = clean(doc.Find("#full-view-journal-trigger").First().Text())
	}

	return &domain.Article{
		ID:          strings.TrimSpace(id),
		Title:       title,
		Abstract:    strings.Join(paragraphs, " "),
		Journal:     strings.TrimSpace(journal),
		PublishedAt: parseCiteDate(clean(doc.Find("#full-view-heading span.cit").First().Text())),
		Authors:     parseAuthors(doc),
	}, nil
}

// parseAuthors resolves affiliation footnote keys against the affiliation list.
func parseAuthors(doc *goquery.Document) []domain.Author {
	affiliations := map[string]string{}
	doc.Find("#full-view-expanded-authors .affiliations li, div.affiliations li").Each(func(_ int, li *goquery.Selection) {
		key := clean(li.Find("sup.key").Text())
		text := clean(li.Text())
		text = strings.TrimSpace(strings.TrimPrefix(text, key))
		if key != "" && text != "" {
			affiliations[key] = text
		}
	})

	authors := make([]domain.Author, 0, 8)
	seen := map[string]struct{}{}
	doc.Find("#full-view-heading .authors-list .authors-list-item").Each(func(_ int, item *goquery.Selection) {
		name := clean(item.Find("a.full-name").First().Text())
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}

		author := domain.Author{Name: name}
		item.Find("a.affiliation-link").Each(func(_ int, link *goquery.Selection) {
			if title, ok := link.Attr("title"); ok && clean(title) != "" {
				author.Affiliations = append(author.Affiliations, clean(title))
				return
			}
			if text, ok := affiliations[clean(link.Text())]; ok {
				author.Affiliations = append(author.Affiliations, text)
			}
		})
		author.Affiliations = dedupe(author.Affiliations)
		authors = append(authors, author)
	})
	return authors
}

func parseCiteDate(cite string) *time.Time {
	match := citeDateExpr.FindString(cite)
	if match == "" {
		return nil
	}
	for _, layout := range citeDateLayouts {
		if t, err := time.Parse(layout, match); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func clean(s string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(s, " "))
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
