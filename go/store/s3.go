package store

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const DefaultS3Key = "ilive-state.json"

// S3Store keeps the snapshot as a single S3 object.
type S3Store struct {
	client s3iface.S3API
	bucket string
	key    string
}

func NewS3Store(sess *session.Session, bucket, key string) *S3Store {
	return newS3Store(s3.New(sess), bucket, key)
}

func newS3Store(client s3iface.S3API, bucket, key string) *S3Store {
	if key == "" {
		key = DefaultS3Key
	}
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Load returns (nil, nil) when the object does not exist yet.
func (s *S3Store) Load(ctx context.Context) (crawler.Snapshot, error) {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, nil
		}
		return nil, oops.Wrapf(err, "get s3://%s/%s", s.bucket, s.key)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, oops.Wrapf(err, "read s3://%s/%s", s.bucket, s.key)
	}
	snapshot, err := decodeSnapshot(data)
	if err != nil {
		return nil, oops.Wrapf(err, "s3://%s/%s", s.bucket, s.key)
	}
	return snapshot, nil
}

func (s *S3Store) Save(ctx context.Context, snapshot crawler.Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:        aws.ReadSeekCloser(bytes.NewReader(data)),
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		ContentType: aws.String("application/json; charset=utf-8"),
	})
	if err != nil {
		return oops.Wrapf(err, "put s3://%s/%s", s.bucket, s.key)
	}
	return nil
}
