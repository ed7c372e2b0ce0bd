package crawler

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	labelSize      = "Größe"
	labelColdRent  = "Miethöhe"
	labelUtilities = "Nebenkosten"
)

// MaxAmount caps parsed amounts so the sum of two never overflows.
const MaxAmount = math.MaxInt32

var (
	breakRegexp      = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRegexp        = regexp.MustCompile(`<[^>]+>`)
	digitsRegexp     = regexp.MustCompile(`[0-9]+`)
	unitNumberRegexp = regexp.MustCompile(`\s*Nr\.\s*\S+\s*$`)
)

// Listing holds the raw attributes of one listing anchor.
type Listing struct {
	Classes []string
	Title   string
	// DataText is the data-text attribute. The page encodes its markup twice.
	DataText string
}

// markup is the part of a listing the status rules look at.
type markup struct {
	classes string
	detail  string
}

func newMarkup(l Listing) markup {
	return markup{
		classes: strings.ToLower(strings.Join(l.Classes, " ")),
		detail:  DecodeEntities(l.DataText),
	}
}

type statusRule struct {
	name   string
	status Status
	match  func(m markup) bool
}

func classContains(token string) func(m markup) bool {
	return func(m markup) bool { return strings.Contains(m.classes, token) }
}

func detailContains(marker string) func(m markup) bool {
	return func(m markup) bool { return strings.Contains(m.detail, marker) }
}

// statusRules are evaluated top to bottom, first match wins. Class tokens on
// the anchor take precedence over the status span inside data-text.
var statusRules = []statusRule{
	{name: "class free", status: StatusFree, match: classContains("free")},
	{name: "class reserved", status: StatusReserved, match: classContains("reserved")},
	{name: "class occupied", status: StatusOccupied, match: classContains("occupied")},
	{name: "detail unit_free", status: StatusFree, match: detailContains("unit_free")},
	{name: "detail unit_reserved", status: StatusReserved, match: detailContains("unit_reserved")},
	{name: "detail unit_occupied", status: StatusOccupied, match: detailContains("unit_occupied")},
}

// ClassifyStatus resolves the status of a listing. It never returns an empty
// Status.
func ClassifyStatus(l Listing) Status {
	status, _ := classify(newMarkup(l))
	return status
}

func classify(m markup) (Status, string) {
	for _, rule := range statusRules {
		if rule.match(m) {
			return rule.status, rule.name
		}
	}
	return StatusUnknown, "fallback"
}

// DecodeEntities reverses the double HTML entity encoding of data-text.
func DecodeEntities(s string) string {
	return html.UnescapeString(html.UnescapeString(s))
}

// ParseDetails turns the data-text blob into a label -> value map, e.g.
//
//	Erdgeschoss<br>Größe: 24.19 m²<br><br>Miethöhe: 551 €<br>Status: <span class=unit_occupied>vermietet</span>
//
// yields {"Größe": "24.19 m²", "Miethöhe": "551 €", "Status": "vermietet"}.
func ParseDetails(dataText string) map[string]string {
	details := make(map[string]string)
	if dataText == "" {
		return details
	}
	for _, part := range breakRegexp.Split(DecodeEntities(dataText), -1) {
		clean := strings.TrimSpace(tagRegexp.ReplaceAllString(part, ""))
		if clean == "" {
			continue
		}
		label, value, ok := strings.Cut(clean, ":")
		if !ok {
			continue
		}
		details[strings.TrimSpace(label)] = strings.TrimSpace(value)
	}
	return details
}

// ParseAmount returns the first run of digits in s, or 0. A run too large
// for MaxAmount is capped at MaxAmount.
func ParseAmount(s string) int {
	match := strings.TrimLeft(digitsRegexp.FindString(s), "0")
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil || n > MaxAmount {
		return MaxAmount
	}
	return n
}

// UnitType strips the "Nr. 0.1" suffix from a listing title.
func UnitType(title string) string {
	return strings.TrimSpace(unitNumberRegexp.ReplaceAllString(title, ""))
}

func formatEuro(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d €", n)
}

// Extract builds the apartment record for one listing.
func Extract(id string, l Listing) *Apartment {
	m := newMarkup(l)
	status, _ := classify(m)
	details := ParseDetails(l.DataText)

	coldRent := ParseAmount(details[labelColdRent])
	utilities := ParseAmount(details[labelUtilities])

	unitType := UnitType(l.Title)
	if unitType == "" {
		unitType = "Unknown"
	}

	return &Apartment{
		ID:        id,
		Name:      "Apartment " + id,
		Type:      unitType,
		Status:    status,
		Size:      details[labelSize],
		ColdRent:  formatEuro(coldRent),
		Utilities: formatEuro(utilities),
		Total:     formatEuro(coldRent + utilities),
	}
}
