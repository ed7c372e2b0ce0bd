package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samsarahq/go/oops"
)

// ListingSelector matches the apartment anchors on the rental page.
const ListingSelector = `a.apartment[href="#detail"]`

// ParsePage extracts every listing on the page. A page without listings gives
// an empty, non-nil Snapshot: the layout probably changed, which is different
// from every apartment being taken.
func ParsePage(raw string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, oops.Wrapf(err, "parse rental page")
	}

	snapshot := make(Snapshot)
	doc.Find(ListingSelector).Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.Text())
		if id == "" {
			return
		}
		if _, seen := snapshot[id]; seen {
			return
		}
		snapshot[id] = Extract(id, listingFromSelection(s))
	})
	return snapshot, nil
}

func listingFromSelection(s *goquery.Selection) Listing {
	return Listing{
		Classes:  strings.Fields(s.AttrOr("class", "")),
		Title:    strings.TrimSpace(s.AttrOr("title", "")),
		DataText: s.AttrOr("data-text", ""),
	}
}
