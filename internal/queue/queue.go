package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nao1215/onioncrawl/internal/model"
)

const (
	// streamPrefix and delayedPrefix namespace the per-kind Redis keys.
	streamPrefix  = "onioncrawl:jobs:"
	delayedPrefix = "onioncrawl:delayed:"

	// inflightPrefix namespaces the idempotency-merge keys.
	inflightPrefix = "onioncrawl:inflight:"

	// consumerGroup is the consumer group shared by all worker pools of a
	// kind. Individual processes register with a unique consumer ID.
	consumerGroup = "workers"

	// jobField is the stream entry field holding the serialized job.
	jobField = "job"

	// promoteBatch bounds how many due delayed jobs one dequeue promotes.
	promoteBatch = 64

	// inflightTTL bounds how long an idempotency key survives if its job
	// is lost entirely (e.g. Redis state wiped between enqueue and ack).
	// After this window the same key may be enqueued again.
	inflightTTL = 24 * time.Hour

	// maxStreamLen caps stream growth; old acked entries are trimmed.
	maxStreamLen = 100000
)

// Queue is the Redis Streams backed job queue. One Queue serves all job
// kinds; worker pools dequeue only the kind they handle.
type Queue struct {
	client     *redis.Client
	consumerID string
	visibility time.Duration
	logger     *slog.Logger
}

// Options configures a Queue.
type Options struct {
	// VisibilityTimeout is how long a dequeued job may stay unacked before
	// it is reclaimed and redelivered.
	VisibilityTimeout time.Duration

	// ConsumerID uniquely identifies this process in the consumer group.
	// Defaults to a random UUID.
	ConsumerID string

	// Logger for queue-level events. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a Queue on the given Redis client.
func New(client *redis.Client, opts Options) *Queue {
	consumerID := opts.ConsumerID
	if consumerID == "" {
		consumerID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Queue{
		client:     client,
		consumerID: consumerID,
		visibility: visibility,
		logger:     logger,
	}
}

// Ping verifies the Redis connection. Worker pools call this at startup
// and refuse to start when it fails.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("job queue unreachable: %w", err)
	}
	return nil
}

// Initialize creates the consumer groups for all job kinds. Safe to call
// repeatedly; existing groups are left untouched.
func (q *Queue) Initialize(ctx context.Context) error {
	for _, kind := range []model.JobKind{model.JobFetch, model.JobDetect, model.JobEnrich, model.JobIndex} {
		err := q.client.XGroupCreateMkStream(ctx, streamKey(kind), consumerGroup, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group for %s: %w", kind, err)
		}
	}
	return nil
}

// streamKey returns the stream name for a job kind.
func streamKey(kind model.JobKind) string {
	return streamPrefix + string(kind)
}

// delayedKey returns the delayed-set name for a job kind.
func delayedKey(kind model.JobKind) string {
	return delayedPrefix + string(kind)
}

// inflightKey returns the idempotency-merge key for a job.
func inflightKey(j *model.Job) string {
	return inflightPrefix + j.IdempotencyKey()
}

// Enqueue adds a job to its kind's stream. When a job with the same
// idempotency key is already pending or in flight, the enqueue is merged:
// it returns false and adds nothing. It returns true when the job was
// actually enqueued.
func (q *Queue) Enqueue(ctx context.Context, job *model.Job) (bool, error) {
	if !job.Kind.Valid() {
		return false, fmt.Errorf("%w: %q", ErrBadKind, job.Kind)
	}

	set, err := q.client.SetNX(ctx, inflightKey(job), q.consumerID, inflightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !set {
		q.logger.Debug("enqueue merged", "idempotency_key", job.IdempotencyKey())
		return false, nil
	}

	if job.Attempt == 0 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	if err := q.addToStream(ctx, job); err != nil {
		// Release the key so a later enqueue can try again.
		q.client.Del(ctx, inflightKey(job))
		return false, err
	}
	return true, nil
}

// addToStream XADDs the serialized job to its kind's stream.
func (q *Queue) addToStream(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(job.Kind),
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{jobField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue returns the next job of the given kind, blocking up to wait.
// Delivery order per call: due delayed jobs are promoted first, then
// entries idle past the visibility timeout are reclaimed, then new
// entries are read. ErrEmpty means nothing became available within wait.
//
// The returned job carries its stream delivery ID; the caller must finish
// with Ack or Nack. A caller that does neither loses its lease after the
// visibility timeout and the job is redelivered elsewhere.
func (q *Queue) Dequeue(ctx context.Context, kind model.JobKind, wait time.Duration) (*model.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadKind, kind)
	}

	if err := q.promoteDue(ctx, kind); err != nil {
		// Promotion failure is not fatal for this dequeue; the jobs stay
		// parked and the next dequeue retries.
		q.logger.Warn("failed to promote delayed jobs", "kind", kind, "error", err)
	}

	if job, err := q.reclaim(ctx, kind); err == nil && job != nil {
		return job, nil
	} else if err != nil {
		q.logger.Warn("failed to reclaim pending jobs", "kind", kind, "error", err)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: q.consumerID,
		Streams:  []string{streamKey(kind), ">"},
		Count:    1,
		Block:    wait,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			return q.decodeMessage(kind, msg)
		}
	}
	return nil, ErrEmpty
}

// reclaim claims one entry that has been pending longer than the
// visibility timeout, i.e. a job whose worker crashed or stalled.
func (q *Queue) reclaim(ctx context.Context, kind model.JobKind) (*model.Job, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey(kind),
		Group:    consumerGroup,
		Consumer: q.consumerID,
		MinIdle:  q.visibility,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to autoclaim: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	job, err := q.decodeMessage(kind, msgs[0])
	if err != nil {
		return nil, err
	}
	q.logger.Info("reclaimed abandoned job",
		"kind", kind, "payload", job.Payload, "attempt", job.Attempt)
	return job, nil
}

// decodeMessage turns a stream entry into a Job carrying its delivery ID.
// Undecodable entries are acked away so they cannot wedge the stream.
func (q *Queue) decodeMessage(kind model.JobKind, msg redis.XMessage) (*model.Job, error) {
	raw, ok := msg.Values[jobField].(string)
	if !ok {
		q.dropMessage(kind, msg.ID)
		return nil, fmt.Errorf("stream entry %s has no job field", msg.ID)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.dropMessage(kind, msg.ID)
		return nil, fmt.Errorf("failed to decode job %s: %w", msg.ID, err)
	}

	job.ID = msg.ID
	return &job, nil
}

// dropMessage acks and deletes a poison entry.
func (q *Queue) dropMessage(kind model.JobKind, id string) {
	ctx := context.Background()
	q.client.XAck(ctx, streamKey(kind), consumerGroup, id)
	q.client.XDel(ctx, streamKey(kind), id)
	q.logger.Warn("dropped undecodable stream entry", "kind", kind, "message_id", id)
}

// Ack finishes a job: it is removed from the stream and its idempotency
// key is released so the same (kind, payload) may be enqueued again.
func (q *Queue) Ack(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		return ErrNotLeased
	}

	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, streamKey(job.Kind), consumerGroup, job.ID)
	pipe.XDel(ctx, streamKey(job.Kind), job.ID)
	pipe.Del(ctx, inflightKey(job))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack requeues a job after delay with its attempt counter incremented.
// The current delivery is removed from the stream and the job parks in
// the delayed set; its idempotency key stays reserved, so duplicate
// enqueues keep merging while it waits.
func (q *Queue) Nack(ctx context.Context, job *model.Job, delay time.Duration) error {
	if job.ID == "" {
		return ErrNotLeased
	}

	requeued := *job
	requeued.ID = ""
	requeued.Attempt = job.Attempt + 1
	requeued.NotBefore = time.Now().UTC().Add(delay)

	data, err := json.Marshal(&requeued)
	if err != nil {
		return fmt.Errorf("failed to serialize requeued job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, streamKey(job.Kind), consumerGroup, job.ID)
	pipe.XDel(ctx, streamKey(job.Kind), job.ID)
	pipe.ZAdd(ctx, delayedKey(job.Kind), redis.Z{
		Score:  float64(requeued.NotBefore.UnixMilli()),
		Member: string(data),
	})
	pipe.Expire(ctx, inflightKey(job), inflightTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}

	q.logger.Debug("job requeued with backoff",
		"kind", job.Kind, "payload", job.Payload,
		"attempt", requeued.Attempt, "delay", delay)
	return nil
}

// promoteDue moves delayed jobs whose not-before time has passed back onto
// their stream. Runs opportunistically at the head of every dequeue; a job
// promoted twice by racing dequeuers is delivered twice, which at-least-once
// semantics already require handlers to tolerate.
func (q *Queue) promoteDue(ctx context.Context, kind model.JobKind) error {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, delayedKey(kind), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed set: %w", err)
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey(kind), member).Result()
		if err != nil {
			return fmt.Errorf("failed to remove delayed job: %w", err)
		}
		if removed == 0 {
			continue // another dequeuer promoted it first
		}

		var job model.Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Warn("dropped undecodable delayed job", "kind", kind, "error", err)
			continue
		}
		if err := q.addToStream(ctx, &job); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns pending and delayed counts per kind for operational
// reporting.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, kind := range []model.JobKind{model.JobFetch, model.JobDetect, model.JobEnrich, model.JobIndex} {
		pending, err := q.client.XLen(ctx, streamKey(kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stream length: %w", err)
		}
		delayed, err := q.client.ZCard(ctx, delayedKey(kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read delayed count: %w", err)
		}
		stats[string(kind)] = pending
		stats[string(kind)+"_delayed"] = delayed
	}
	return stats, nil
}
