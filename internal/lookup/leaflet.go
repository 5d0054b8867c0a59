package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
)

// Leaflet is the patient information leaflet reduced to readable
// sections for in-app display.
type Leaflet struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// FetchLeaflet downloads and parses a leaflet HTML document from the
// registry. The caller surfaces connectivity errors; there is no
// retry.
func (c *Client) FetchLeaflet(ctx context.Context, leafletURL string) (*Leaflet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLookupUnavailable, "leaflet fetch cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, leafletURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid leaflet URL")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLookupUnavailable, "could not download the leaflet")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrap(fmt.Errorf("status %d", resp.StatusCode), apperrors.ErrLookupUnavailable, "could not download the leaflet")
	}
	return ParseLeaflet(resp.Body)
}

// ParseLeaflet extracts the title and the numbered sections from
// leaflet HTML. Text between headings collapses into one block per
// section; markup the registry nests inside paragraphs is flattened.
func ParseLeaflet(r io.Reader) (*Leaflet, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLookupUnavailable, "malformed leaflet document")
	}

	leaflet := &Leaflet{}
	if title := doc.Find("h1").First(); title.Length() > 0 {
		leaflet.Title = clean(title.Text())
	} else {
		leaflet.Title = clean(doc.Find("title").Text())
	}

	doc.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
		section := Section{Heading: clean(heading.Text())}
		var parts []string
		for sib := heading.Next(); sib.Length() > 0; sib = sib.Next() {
			if goquery.NodeName(sib) == "h2" || goquery.NodeName(sib) == "h3" {
				break
			}
			if text := clean(sib.Text()); text != "" {
				parts = append(parts, text)
			}
		}
		section.Text = strings.Join(parts, "\n")
		if section.Heading != "" {
			leaflet.Sections = append(leaflet.Sections, section)
		}
	})
	return leaflet, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
