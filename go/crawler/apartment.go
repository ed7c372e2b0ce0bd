package crawler

import (
	"encoding/json"
	"sort"
	"strings"
)

type Status string

const (
	StatusFree     Status = "free"
	StatusReserved Status = "reserved"
	StatusOccupied Status = "occupied"
	StatusUnknown  Status = "unknown"
)

// Statuses lists every status in summary order.
var Statuses = []Status{StatusFree, StatusReserved, StatusOccupied, StatusUnknown}

// ParseStatus maps a persisted status name back to a Status. Anything it does
// not recognise becomes StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusFree:
		return StatusFree
	case StatusReserved:
		return StatusReserved
	case StatusOccupied:
		return StatusOccupied
	}
	return StatusUnknown
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

// Unavailable reports whether the apartment is taken.
func (s Status) Unavailable() bool {
	return s == StatusOccupied || s == StatusReserved
}

// Apartment is one listing as seen during one check. The json names are the
// persisted state layout.
type Apartment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Status    Status `json:"status"`
	Size      string `json:"size"`
	ColdRent  string `json:"kaltmiete"`
	Utilities string `json:"nebenkosten"`
	Total     string `json:"total"`
}

// Snapshot maps listing id to apartment. A nil Snapshot means "no snapshot",
// which is not the same thing as an empty one.
type Snapshot map[string]*Apartment

// IDs returns the snapshot keys in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WithStatus returns the apartments in the given status, sorted by id.
func (s Snapshot) WithStatus(status Status) []*Apartment {
	apts := make([]*Apartment, 0)
	for _, id := range s.IDs() {
		if apt := s[id]; apt != nil && apt.Status == status {
			apts = append(apts, apt)
		}
	}
	return apts
}

// Counts returns the number of apartments per status.
func (s Snapshot) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, status := range Statuses {
		counts[status] = 0
	}
	for _, apt := range s {
		if apt == nil {
			continue
		}
		counts[apt.Status]++
	}
	return counts
}
