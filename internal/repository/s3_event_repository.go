package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"livex/internal/domain/event"

	"github.com/avast/retry-go"
)

// ObjectWriter is the subset of the S3 client the event archive needs.
type ObjectWriter interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// S3EventRepository writes one JSON object per event.
type S3EventRepository struct {
	objects  ObjectWriter
	prefix   string
	attempts uint
}

func NewS3EventRepository(objects ObjectWriter) *S3EventRepository {
	return &S3EventRepository{objects: objects, prefix: "events", attempts: 3}
}

func (r *S3EventRepository) Append(ctx context.Context, e *event.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	key := r.objectKey(e)

	err = retry.Do(
		func() error { return r.objects.PutObject(ctx, key, "application/json", body) },
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("put event %s: %w", key, err)
	}
	return nil
}

// objectKey partitions by UTC day so archives can be listed per date.
func (r *S3EventRepository) objectKey(e *event.Event) string {
	ts := e.ReceivedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", r.prefix, ts.Year(), ts.Month(), ts.Day(), e.ID)
}
