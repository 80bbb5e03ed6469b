package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CartFox/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobRetryKey      = "job_retry"
	JobDeadLetterKey = "job_dead_letter"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	RetryBackoffBase  = time.Second
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// Queue manages background jobs using Redis. Delivery is at-least-once:
// jobs survive restarts in the pending/processing lists or the retry set,
// a sweeper requeues jobs abandoned by a crashed worker, and a scheduler
// requeues retries whose backoff has elapsed. Enqueue is idempotent on the
// job ID, so a provider redelivery before the job completes is a no-op.
type Queue struct {
	client     *redis.Client
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 5 // bounded concurrency to limit contention on product rows
	}

	return &Queue{
		client:     cache.GetClient(),
		workers:    workers,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recovers jobs stuck in processing after a crash; this is the queue
	// redelivery path the ledger's authoritative dedup exists for.
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, 1*time.Minute)

	// Moves due retries from the retry set back to the pending list. The
	// set lives in Redis, so a retry scheduled just before a crash or
	// shutdown is picked up again on the next start.
	q.wg.Add(1)
	go q.retryScheduler(500 * time.Millisecond)
}

// Stop stops the job queue workers. In-flight jobs finish before workers
// return; nothing is left taken-but-unacknowledged.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				jobKey := JobKeyPrefix + id
				data, err := q.client.Get(ctx, jobKey).Result()
				if err != nil {
					if err != redis.Nil {
						log.Errorf("[JobQueue] Sweeper Get error for %s: %v", id, err)
					}
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				var job Job
				if uerr := json.Unmarshal([]byte(data), &job); uerr != nil {
					log.Errorf("[JobQueue] Sweeper unmarshal error for %s: %v", id, uerr)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				if job.Status != JobStatusProcessing {
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				started := job.ProcessedAt
				if started == nil || started.IsZero() {
					tmp := job.UpdatedAt
					if tmp.IsZero() {
						tmp = job.CreatedAt
					}
					started = &tmp
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(*started))
					job.Status = JobStatusPending
					job.ErrorMsg = "recovered by sweeper"
					job.UpdatedAt = now
					q.updateJob(ctx, &job)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					_ = q.client.RPush(ctx, JobQueueKey, id).Err()
				}
			}
		}
	}
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			<-q.workerPool

			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
				}
				q.workerPool <- struct{}{}
				time.Sleep(time.Second)
				continue
			}

			if job != nil {
				log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
				q.processJob(ctx, job)
			}

			q.workerPool <- struct{}{}
		}
	}
}

// EnqueueWebhookJob adds a fulfillment job for a verified webhook event.
// The job ID equals provider:event_id and SETNX makes the enqueue
// idempotent: a second delivery of the same event while its job is still
// live returns enqueued=false without touching the pending list.
func (q *Queue) EnqueueWebhookJob(payload FulfillWebhookJobPayload) (*Job, bool, error) {
	ctx := context.Background()

	job := &Job{
		ID:         payload.JobID(),
		Type:       JobTypeFulfillWebhook,
		Status:     JobStatusPending,
		Payload:    payload.ToMap(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID
	set, err := q.client.SetNX(ctx, jobKey, jobData, JobTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve job %s: %w", job.ID, err)
	}
	if !set {
		log.Infof("[JobQueue] Job %s already enqueued, skipping", job.ID)
		return job, false, nil
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		// Roll back the reservation so a provider retry can re-enqueue.
		_ = q.client.Del(ctx, jobKey).Err()
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, true, nil
}

// dequeueJob gets the next job from the queue
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	// Move job from pending queue to processing queue atomically
	result, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	jobID := result
	jobKey := JobKeyPrefix + jobID

	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s", jobID)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, nil
}

// processJob processes a single job
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	var err error
	switch job.Type {
	case JobTypeFulfillWebhook:
		err = q.processFulfillWebhookJob(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())

		if job.IsRetryable() {
			backoff := job.RetryBackoff()
			log.Infof("[JobQueue] Retrying job %s in %s (Attempt %d/%d)", job.ID, backoff, job.RetryCount, job.MaxRetries)
			job.MarkAsRetrying()
			q.updateJob(ctx, job)
			// Park on the durable retry set before the job leaves the
			// processing list, so there is no moment where the ID is in
			// neither structure.
			q.scheduleRetry(ctx, job.ID, backoff)
		} else {
			// Permanently failed jobs represent paid-but-unfulfilled orders.
			// Keep them visible: dead-letter list plus error log, never a
			// silent drop.
			log.Errorf("[JobQueue] Job %s permanently failed after %d attempts: %s", job.ID, job.RetryCount, job.ErrorMsg)
			q.deadLetterJob(ctx, job)
			q.updateJobStats(ctx, JobStatusFailed, 1)
		}
	} else {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.removeCompletedJob(ctx, job.ID)
	}

	if job.Status != JobStatusCompleted {
		q.updateJob(ctx, job)
	}
	q.removeFromProcessing(ctx, job.ID)
}

// scheduleRetry parks a failed job on the retry set, scored by the time it
// becomes due
func (q *Queue) scheduleRetry(ctx context.Context, jobID string, backoff time.Duration) {
	readyAt := float64(time.Now().Add(backoff).UnixMilli())
	if err := q.client.ZAdd(ctx, JobRetryKey, redis.Z{Score: readyAt, Member: jobID}).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to schedule retry for job %s: %v", jobID, err)
		// Requeue immediately rather than risk losing the job.
		_ = q.client.LPush(ctx, JobQueueKey, jobID).Err()
	}
}

// retryScheduler periodically drains due entries from the retry set
func (q *Queue) retryScheduler(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Retry scheduler stopping")
			return
		case <-ticker.C:
			q.requeueDueRetries(ctx, time.Now())
		}
	}
}

// requeueDueRetries pushes every retry due at now back onto the pending
// list. ZRem gates the push so an entry is requeued exactly once even when
// two instances race on it.
func (q *Queue) requeueDueRetries(ctx context.Context, now time.Time) {
	ids, err := q.client.ZRangeByScore(ctx, JobRetryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		log.Errorf("[JobQueue] Retry set scan error: %v", err)
		return
	}
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, JobRetryKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to requeue retry %s: %v", id, err)
		}
	}
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	jobKey := JobKeyPrefix + job.ID
	if err := q.client.Set(ctx, jobKey, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// deadLetterJob records a permanently failed job on the dead-letter list
func (q *Queue) deadLetterJob(ctx context.Context, job *Job) {
	if err := q.client.LPush(ctx, JobDeadLetterKey, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to dead-letter job %s: %v", job.ID, err)
	}
	// Keep the job record around for inspection well past the normal TTL.
	jobData, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, 7*24*time.Hour).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to persist dead-lettered job %s: %v", job.ID, err)
	}
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	jobKey := JobKeyPrefix + jobID
	if err := q.client.Del(ctx, jobKey).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := json.Number(count).Int64(); err == nil {
			result[JobStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetRetrySize returns the number of jobs waiting out a retry backoff
func (q *Queue) GetRetrySize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobRetryKey).Result()
}

// GetDeadLetterSize returns the number of permanently failed jobs
func (q *Queue) GetDeadLetterSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobDeadLetterKey).Result()
}
