package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeStatsRefresh      JobType = "stats_refresh"
	JobTypeCategoriesRefresh JobType = "categories_refresh"
)

const (
	DefaultPrefix = "taskdash:"

	defaultMaxTries    = 3
	defaultPollTimeout = 5 * time.Second
	defaultJobTimeout  = 30 * time.Second
	promoteBatch       = 100
)

// Queues names the Redis lists one deployment uses. Jobs that are not due
// yet wait in a sorted set next to the list they will be pushed onto.
type Queues struct {
	Main  string
	Retry string
	Dead  string
}

// QueuesFor derives the queue names from a key prefix so deployments sharing
// a Redis database never consume each other's jobs.
func QueuesFor(prefix string) Queues {
	return Queues{
		Main:  prefix + "jobs",
		Retry: prefix + "jobs:retry",
		Dead:  prefix + "jobs:dead",
	}
}

var DefaultQueues = QueuesFor(DefaultPrefix)

func delayedKey(queue string) string {
	return queue + ":delayed"
}

// promoteDue moves members scored at or below ARGV[1] from the delayed set
// KEYS[1] onto the list KEYS[2]. Running it as one script keeps two workers
// from pushing the same job.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('RPUSH', KEYS[2], job)
end
return #due
`)

func schedule(ctx context.Context, client *redis.Client, queue string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return client.ZAdd(ctx, delayedKey(queue), redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// Worker pops refresh jobs from Redis lists and dispatches them by type.
// Failed jobs are retried with exponential backoff and parked on the dead
// queue once MaxTries is reached.
type Worker struct {
	client      *redis.Client
	handlers    map[JobType]JobHandler
	queues      Queues
	logger      *slog.Logger
	pollTimeout time.Duration
	jobTimeout  time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient *redis.Client
	Queues      Queues
	PollTimeout time.Duration
	JobTimeout  time.Duration
	Logger      *slog.Logger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	queues := config.Queues
	if queues.Main == "" {
		queues = DefaultQueues
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := config.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	jobTimeout := config.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	return &Worker{
		client:      config.RedisClient,
		handlers:    make(map[JobType]JobHandler),
		queues:      queues,
		logger:      logger.With("component", "worker"),
		pollTimeout: pollTimeout,
		jobTimeout:  jobTimeout,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.logger.Info("starting worker", "concurrency", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if err := w.processNextJob(w.ctx); err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Error("processing job", "error", err)
			w.sleep(time.Second)
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
	case <-t.C:
	}
}

// promote pushes delayed jobs whose time has come onto their lists.
func (w *Worker) promote(ctx context.Context) error {
	now := strconv.FormatInt(w.now().UnixMilli(), 10)
	for _, queue := range []string{w.queues.Main, w.queues.Retry} {
		n, err := promoteDue.Run(ctx, w.client, []string{delayedKey(queue), queue}, now, promoteBatch).Int()
		if err != nil {
			return fmt.Errorf("failed to promote delayed jobs: %w", err)
		}
		if n > 0 {
			w.logger.Debug("promoted delayed jobs", "queue", queue, "count", n)
		}
	}
	return nil
}

func (w *Worker) processNextJob(ctx context.Context) error {
	if err := w.promote(ctx); err != nil {
		return err
	}

	result, err := w.client.BLPop(ctx, w.pollTimeout, w.queues.Main, w.queues.Retry).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if job.ProcessAt.After(w.now()) {
		return schedule(ctx, w.client, queue, &job)
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	logger := w.logger.With("job_id", job.ID, "job_type", job.Type)
	logger.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			logger.Warn("job failed, retrying", "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
			return w.retryJob(ctx, job)
		}

		logger.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		return w.moveToDeadQueue(ctx, job, err)
	}

	logger.Debug("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Second
	job.ProcessAt = w.now().Add(delay)

	return schedule(ctx, w.client, w.queues.Retry, job)
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, w.queues.Dead, deadJobData).Err()
}

// JobQueue is the producer side used by the cached task service.
type JobQueue struct {
	client *redis.Client
	queue  string
}

func NewJobQueue(client *redis.Client, queue string) *JobQueue {
	if queue == "" {
		queue = DefaultQueues.Main
	}
	return &JobQueue{client: client, queue: queue}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) (string, error) {
	return q.EnqueueAt(ctx, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, jobType JobType, payload map[string]interface{}, processAt time.Time) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate job id: %w", err)
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   payload,
		MaxTries:  defaultMaxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if processAt.After(job.CreatedAt) {
		if err := schedule(ctx, q.client, q.queue, job); err != nil {
			return "", fmt.Errorf("schedule %s: %w", jobType, err)
		}
		return job.ID, nil
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.queue, jobData).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return job.ID, nil
}

// Size counts the jobs ready to run.
func (q *JobQueue) Size(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, q.queue).Result()
}

// Delayed counts the jobs waiting for their process time.
func (q *JobQueue) Delayed(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.ZCard(ctx, delayedKey(q.queue)).Result()
}
