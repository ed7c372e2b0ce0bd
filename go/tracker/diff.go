package tracker

import "github.com/KevinXing/ilive-tracker/go/crawler"

// Diff returns the apartments of current that became available since
// previous. A nil previous means there is no earlier state at all, which never
// alerts. An id missing from previous counts as previously unavailable.
func Diff(previous, current crawler.Snapshot) crawler.Snapshot {
	delta := make(crawler.Snapshot)
	if previous == nil {
		return delta
	}
	for id, apt := range current {
		if apt == nil {
			continue
		}
		if isAvailable(apt) && wasUnavailable(previous, id) {
			delta[id] = apt
		}
	}
	return delta
}

func wasUnavailable(previous crawler.Snapshot, id string) bool {
	prev, ok := previous[id]
	if !ok || prev == nil {
		return true
	}
	return prev.Status.Unavailable()
}

// isAvailable treats an unknown status as available when a rent is listed.
func isAvailable(apt *crawler.Apartment) bool {
	switch apt.Status {
	case crawler.StatusFree:
		return true
	case crawler.StatusUnknown:
		return apt.ColdRent != ""
	}
	return false
}
