package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

func sampleSnapshot() crawler.Snapshot {
	return crawler.Snapshot{
		"0.1": {
			ID: "0.1", Name: "Apartment 0.1", Type: "Komfort-Apartment", Status: crawler.StatusFree,
			Size: "24.19 m²", ColdRent: "551 €", Utilities: "167 €", Total: "718 €",
		},
		"0.2": {ID: "0.2", Name: "Apartment 0.2", Type: "Apartment", Status: crawler.StatusOccupied},
	}
}

func TestFileStoreMissingFileIsAbsent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	snapshot, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snapshot != nil {
		t.Errorf("Load() = %v; want nil for missing file", snapshot)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || *got["0.1"] != *sampleSnapshot()["0.1"] {
		t.Errorf("Load() = %+v", got["0.1"])
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(raw)
	for _, want := range []string{`"kaltmiete": "551 €"`, `"status": "occupied"`, `"size": "24.19 m²"`, "\n  "} {
		if !strings.Contains(text, want) {
			t.Errorf("state file missing %q:\n%s", want, text)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreEmptySnapshotIsNotAbsent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()
	if err := s.Save(ctx, crawler.Snapshot{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v; want empty non-nil snapshot", got)
	}
}

func TestFileStoreOverwrites(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()
	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	next := crawler.Snapshot{"9.9": {ID: "9.9", Status: crawler.StatusReserved}}
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got["9.9"] == nil {
		t.Errorf("Load() = %v; want only 9.9", got.IDs())
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("expected error for corrupt state file")
	}
}

func TestDecodeSnapshotNormalises(t *testing.T) {
	data := []byte(`{"a":{"name":"Apartment a"},"b":null,"c":{"id":"c","status":"RESERVED"}}`)
	got, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if _, ok := got["b"]; ok {
		t.Error("null record kept")
	}
	if got["a"].ID != "a" || got["a"].Status != crawler.StatusUnknown {
		t.Errorf("a = %+v; want id filled and status unknown", got["a"])
	}
	if got["c"].Status != crawler.StatusReserved {
		t.Errorf("c = %q; want reserved", got["c"].Status)
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	getErr  error
	putErr  error
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	s := newS3Store(fake, "ilive", "")
	ctx := context.Background()

	got, err := s.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("Load() before save = %v, %v; want nil, nil", got, err)
	}

	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["ilive/"+DefaultS3Key]; !ok {
		t.Fatalf("object not written under default key: %v", fake.objects)
	}

	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got["0.1"].Total != "718 €" {
		t.Errorf("Load() = %+v", got)
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(fake.objects["ilive/"+DefaultS3Key], &raw); err != nil {
		t.Fatalf("stored object is not a json object: %v", err)
	}
	if raw["0.2"]["status"] != "occupied" {
		t.Errorf("status stored as %q", raw["0.2"]["status"])
	}
}

func TestS3StoreErrors(t *testing.T) {
	ctx := context.Background()
	denied := awserr.New("AccessDenied", "Access Denied", nil)

	if _, err := newS3Store(&fakeS3{getErr: denied}, "b", "k").Load(ctx); err == nil {
		t.Error("Load should fail on access denied")
	}
	if err := newS3Store(&fakeS3{putErr: errors.New("timeout")}, "b", "k").Save(ctx, sampleSnapshot()); err == nil {
		t.Error("Save should fail when put fails")
	}
}
