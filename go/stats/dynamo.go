// Package stats records every observed apartment status so availability can be
// analysed over time.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

// Dynamo has a max batch size of 25.
const maxBatchSize = 25

const (
	maxUnprocessedRetries = 3
	defaultRetryDelay     = 200 * time.Millisecond
)

func timeToMs(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

// DynamoRecorder writes one item per apartment per cycle, keyed by AptNum and
// CreatedAtMs.
type DynamoRecorder struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	// retryDelay is the wait before re-sending unprocessed items; it doubles
	// each time.
	retryDelay time.Duration
}

func NewDynamoRecorder(sess *session.Session, table string) *DynamoRecorder {
	return &DynamoRecorder{client: dynamodb.New(sess), table: table, retryDelay: defaultRetryDelay}
}

func (r *DynamoRecorder) Name() string { return "dynamodb" }

func (r *DynamoRecorder) Record(ctx context.Context, obs tracker.Observation) error {
	createdAtMs := timeToMs(obs.ObservedAt)

	writeRequests := make([]*dynamodb.WriteRequest, 0, maxBatchSize)
	ids := obs.Snapshot.IDs()
	for i, id := range ids {
		if apt := obs.Snapshot[id]; apt != nil {
			writeRequests = append(writeRequests, &dynamodb.WriteRequest{
				PutRequest: &dynamodb.PutRequest{Item: historyItem(obs.CycleID, createdAtMs, apt)},
			})
		}

		if len(writeRequests) == maxBatchSize || (i == len(ids)-1 && len(writeRequests) > 0) {
			if err := r.batchWrite(ctx, writeRequests); err != nil {
				return err
			}
			writeRequests = make([]*dynamodb.WriteRequest, 0, maxBatchSize)
		}
	}
	return nil
}

func (r *DynamoRecorder) batchWrite(ctx context.Context, requests []*dynamodb.WriteRequest) error {
	pending := map[string][]*dynamodb.WriteRequest{r.table: requests}
	delay := r.retryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	for attempt := 0; ; attempt++ {
		out, err := r.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return oops.Wrapf(err, "fail to batch write apartment history to %s", r.table)
		}
		if len(out.UnprocessedItems[r.table]) == 0 {
			return nil
		}
		if attempt == maxUnprocessedRetries {
			return oops.Errorf("%d apartment history items left unprocessed in %s", len(out.UnprocessedItems[r.table]), r.table)
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return oops.Wrapf(ctx.Err(), "batch write to %s cancelled", r.table)
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func historyItem(cycleID string, createdAtMs int64, apt *crawler.Apartment) map[string]*dynamodb.AttributeValue {
	item := map[string]*dynamodb.AttributeValue{
		"AptNum":      {S: aws.String(apt.ID)},
		"CreatedAtMs": {N: aws.String(fmt.Sprintf("%d", createdAtMs))},
		"CycleID":     {S: aws.String(cycleID)},
		"Status":      {S: aws.String(string(apt.Status))},
	}
	// Dynamo rejects empty string attributes.
	for name, value := range map[string]string{
		"Name":        apt.Name,
		"Type":        apt.Type,
		"Size":        apt.Size,
		"Kaltmiete":   apt.ColdRent,
		"Nebenkosten": apt.Utilities,
		"Total":       apt.Total,
	} {
		if value != "" {
			item[name] = &dynamodb.AttributeValue{S: aws.String(value)}
		}
	}
	return item
}
