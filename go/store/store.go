// Package store persists the last apartment snapshot between check cycles,
// either as a local JSON file or as an S3 object.
//
// Both backends write the same layout: one JSON object mapping listing id to
// the apartment record, indented and with non-ASCII text left unescaped so
// the file stays readable.
package store

import (
	"bytes"
	"encoding/json"

	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

func encodeSnapshot(snapshot crawler.Snapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = crawler.Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return nil, oops.Wrapf(err, "marshal snapshot")
	}
	return buf.Bytes(), nil
}

// decodeSnapshot returns nil for a JSON null, which callers treat like a
// missing snapshot.
func decodeSnapshot(data []byte) (crawler.Snapshot, error) {
	var snapshot crawler.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, oops.Wrapf(err, "unmarshal snapshot")
	}
	for id, apt := range snapshot {
		if apt == nil {
			delete(snapshot, id)
			continue
		}
		if apt.ID == "" {
			apt.ID = id
		}
		if apt.Status == "" {
			apt.Status = crawler.StatusUnknown
		}
	}
	return snapshot, nil
}
