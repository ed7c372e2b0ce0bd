package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/KevinXing/ilive-tracker/go/crawler"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	batches     [][]*dynamodb.WriteRequest
	calls       []time.Time
	unprocessed int
	err         error
}

func (f *fakeDynamo) BatchWriteItemWithContext(ctx aws.Context, in *dynamodb.BatchWriteItemInput, opts ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	f.calls = append(f.calls, time.Now())
	if f.err != nil {
		return nil, f.err
	}
	for _, reqs := range in.RequestItems {
		f.batches = append(f.batches, reqs)
		if f.unprocessed > 0 {
			f.unprocessed--
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]*dynamodb.WriteRequest{"History": reqs[:1]},
			}, nil
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func observation(n int) tracker.Observation {
	snapshot := crawler.Snapshot{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d.%02d", i/10, i%10)
		snapshot[id] = &crawler.Apartment{ID: id, Name: "Apartment " + id, Type: "Apartment", Status: crawler.StatusOccupied}
	}
	return tracker.Observation{
		CycleID:    "cycle-1",
		ObservedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Snapshot:   snapshot,
	}
}

func TestDynamoRecorderBatches(t *testing.T) {
	fake := &fakeDynamo{}
	r := &DynamoRecorder{client: fake, table: "History"}

	if err := r.Record(context.Background(), observation(30)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(fake.batches) != 2 || len(fake.batches[0]) != 25 || len(fake.batches[1]) != 5 {
		t.Fatalf("batch sizes = %d", len(fake.batches))
	}

	item := fake.batches[0][0].PutRequest.Item
	if *item["AptNum"].S != "0.00" || *item["CycleID"].S != "cycle-1" || *item["Status"].S != "occupied" {
		t.Errorf("item = %v", item)
	}
	if *item["CreatedAtMs"].N != fmt.Sprint(time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC).UnixMilli()) {
		t.Errorf("CreatedAtMs = %s", *item["CreatedAtMs"].N)
	}
	if _, ok := item["Total"]; ok {
		t.Error("empty attributes must be omitted")
	}
}

func TestDynamoRecorderRetriesUnprocessed(t *testing.T) {
	fake := &fakeDynamo{unprocessed: 1}
	r := &DynamoRecorder{client: fake, table: "History", retryDelay: 10 * time.Millisecond}

	if err := r.Record(context.Background(), observation(3)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(fake.batches) != 2 || len(fake.batches[1]) != 1 {
		t.Errorf("expected one retry of the unprocessed item, got %d calls", len(fake.batches))
	}

	fake = &fakeDynamo{unprocessed: 10}
	r.client = fake
	if err := r.Record(context.Background(), observation(3)); err == nil {
		t.Error("expected error when items stay unprocessed")
	}
	if len(fake.batches) != maxUnprocessedRetries+1 {
		t.Fatalf("calls = %d", len(fake.batches))
	}
	want := 10 * time.Millisecond
	for i := 1; i < len(fake.calls); i++ {
		if gap := fake.calls[i].Sub(fake.calls[i-1]); gap < want {
			t.Errorf("retry %d waited %v; want at least %v", i, gap, want)
		}
		want *= 2
	}
}

func TestDynamoRecorderRetryStopsOnCancel(t *testing.T) {
	fake := &fakeDynamo{unprocessed: 10}
	r := &DynamoRecorder{client: fake, table: "History", retryDelay: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := r.Record(ctx, observation(3)); err == nil {
		t.Fatal("expected error after cancellation")
	}
	if time.Since(start) > 5*time.Second || len(fake.batches) != 1 {
		t.Errorf("calls = %d after %v", len(fake.batches), time.Since(start))
	}
}

func TestDynamoRecorderError(t *testing.T) {
	r := &DynamoRecorder{client: &fakeDynamo{err: errors.New("throttled")}, table: "History"}
	if err := r.Record(context.Background(), observation(1)); err == nil {
		t.Error("expected error")
	}
	if err := r.Record(context.Background(), observation(0)); err != nil {
		t.Errorf("empty observation: %v", err)
	}
}

func TestHistoryRows(t *testing.T) {
	obs := observation(2)
	obs.Snapshot["0.01"].Status = crawler.StatusFree
	obs.Snapshot["0.01"].Total = "718 €"
	obs.Snapshot["nil"] = nil

	rows := historyRows(obs)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][1] != "0.00" || rows[1][1] != "0.01" {
		t.Errorf("rows not in id order: %v, %v", rows[0][1], rows[1][1])
	}
	if rows[1][5] != "free" || rows[1][9] != "718 €" || rows[1][0] != "cycle-1" {
		t.Errorf("row = %v", rows[1])
	}
	if len(rows[0]) != 10 {
		t.Errorf("row has %d columns", len(rows[0]))
	}
}
