package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"sync"

	"github.com/pthm-cable/blight/blob"
)

// Content types for exported blobs.
const (
	ContentTypeSnapshot = "application/octet-stream"
	ContentTypePNG      = "image/png"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = fmt.Errorf("export queue closed")

type exportJob struct {
	key         string
	contentType string
	timestep    int
	encode      func(*bytes.Buffer) error
}

// ExportQueue writes snapshots and diagnostic images to a blob store on a
// single background worker, off the simulation's critical path. Close
// drains every accepted job before returning.
type ExportQueue struct {
	store  blob.Store
	prefix string
	logger *slog.Logger

	jobs chan exportJob
	done chan struct{}

	// closeMu guards closed and the jobs channel close. Enqueue holds it
	// shared while sending so Close cannot close the channel under it.
	closeMu sync.RWMutex
	closed  bool

	mu       sync.Mutex
	firstErr error
	written  int
}

// NewExportQueue starts a queue holding up to capacity pending jobs. Keys
// are written under prefix.
func NewExportQueue(store blob.Store, prefix string, capacity int, logger *slog.Logger) *ExportQueue {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExportQueue{
		store:  store,
		prefix: prefix,
		logger: logger,
		jobs:   make(chan exportJob, capacity),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

// MortalityKey returns the blob key of a timestep's mortality snapshot.
func MortalityKey(prefix string, timestep int) string {
	return path.Join(prefix, "mortality_"+strconv.Itoa(timestep)+".bin")
}

// FieldKey returns the blob key of a diagnostic field image.
func FieldKey(prefix, field string, timestep int) string {
	return path.Join(prefix, field+"_"+strconv.Itoa(timestep)+".png")
}

// EnqueueMortality schedules s for export. It blocks while the queue is
// full until ctx is done.
func (q *ExportQueue) EnqueueMortality(ctx context.Context, s MortalitySnapshot) error {
	return q.enqueue(ctx, exportJob{
		key:         MortalityKey(q.prefix, int(s.Timestep)),
		contentType: ContentTypeSnapshot,
		timestep:    int(s.Timestep),
		encode: func(buf *bytes.Buffer) error {
			_, err := s.WriteTo(buf)
			return err
		},
	})
}

// EnqueueField schedules a grayscale PNG of values. The slice must not be
// modified after the call.
func (q *ExportQueue) EnqueueField(ctx context.Context, field string, timestep, width, height int, values []float64) error {
	return q.enqueue(ctx, exportJob{
		key:         FieldKey(q.prefix, field, timestep),
		contentType: ContentTypePNG,
		timestep:    timestep,
		encode: func(buf *bytes.Buffer) error {
			return WriteFieldPNG(buf, width, height, values)
		},
	})
}

func (q *ExportQueue) enqueue(ctx context.Context, job exportJob) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ExportQueue) worker() {
	defer close(q.done)
	var buf bytes.Buffer
	for job := range q.jobs {
		buf.Reset()
		err := job.encode(&buf)
		if err == nil {
			_, err = q.store.Put(context.Background(), job.key, &buf, blob.PutOptions{
				ContentType: job.contentType,
				Metadata:    map[string]string{"timestep": strconv.Itoa(job.timestep)},
			})
		}

		q.mu.Lock()
		if err != nil {
			q.logger.Error("export failed", "key", job.key, "error", err)
			if q.firstErr == nil {
				q.firstErr = fmt.Errorf("exporting %s: %w", job.key, err)
			}
		} else {
			q.written++
		}
		q.mu.Unlock()
	}
}

// Written returns the number of blobs stored so far.
func (q *ExportQueue) Written() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

// Close stops accepting jobs and waits for pending ones to finish or for
// ctx to end. It returns the first export error, or ctx's error if the
// drain did not complete.
func (q *ExportQueue) Close(ctx context.Context) error {
	q.closeMu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.closeMu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
		return fmt.Errorf("draining export queue: %w", ctx.Err())
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}
