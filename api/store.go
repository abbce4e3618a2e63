package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"portsweep/output"
	"portsweep/scanner"
)

// TaskStore defines persistence operations for scan tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *ScanTask) error
	GetTask(ctx context.Context, id string) (*ScanTask, error)
	UpdateTask(ctx context.Context, task *ScanTask) error
	UpdateProgress(ctx context.Context, id string, progress Progress) error
	PushToQueue(ctx context.Context, taskID string) error
	// PopFromQueue blocks for up to timeout and returns ErrQueueEmpty when nothing arrived.
	PopFromQueue(ctx context.Context, timeout time.Duration) (string, error)
	// RequestCancel flags the task and notifies every subscribed worker.
	RequestCancel(ctx context.Context, taskID string) error
	// SubscribeCancels streams task IDs whose cancellation was requested.
	SubscribeCancels(ctx context.Context) (<-chan string, func() error, error)
	Ping(ctx context.Context) error
}

var (
	// ErrTaskNotFound indicates the requested task doesn't exist in the store.
	ErrTaskNotFound = errors.New("task not found")
	// ErrQueueEmpty indicates PopFromQueue timed out without a task.
	ErrQueueEmpty = errors.New("queue empty")
)

const (
	queueKey      = "scans:queue"
	cancelChannel = "scans:cancel"
	taskTTL       = 7 * 24 * time.Hour

	fieldCancelRequested = "cancel_requested"
	fieldProgressDone    = "progress_done"
	fieldProgressTotal   = "progress_total"
)

// RedisStore implements TaskStore using Redis as backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed task store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) taskKey(id string) string {
	return fmt.Sprintf("scan:%s", id)
}

// CreateTask persists a new scan task in Redis.
func (s *RedisStore) CreateTask(ctx context.Context, task *ScanTask) error {
	data, err := serializeTask(task)
	if err != nil {
		return err
	}
	key := s.taskKey(task.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, data)
		pipe.Expire(ctx, key, taskTTL)
		return nil
	})
	return err
}

// GetTask retrieves a task by ID.
func (s *RedisStore) GetTask(ctx context.Context, id string) (*ScanTask, error) {
	res, err := s.client.HGetAll(ctx, s.taskKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrTaskNotFound
	}
	return deserializeTask(res)
}

// UpdateTask updates an existing task in Redis. The cancellation flag is owned
// by RequestCancel and is never overwritten here.
func (s *RedisStore) UpdateTask(ctx context.Context, task *ScanTask) error {
	data, err := serializeTask(task)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.taskKey(task.ID), data).Err()
}

func (s *RedisStore) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	return s.client.HSet(ctx, s.taskKey(id),
		fieldProgressDone, progress.Done,
		fieldProgressTotal, progress.Total,
	).Err()
}

// PushToQueue enqueues a task ID for workers to process.
func (s *RedisStore) PushToQueue(ctx context.Context, taskID string) error {
	return s.client.LPush(ctx, queueKey, taskID).Err()
}

// PopFromQueue blocks until a task ID is available or timeout elapses.
func (s *RedisStore) PopFromQueue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	if len(res) != 2 {
		return "", errors.New("unexpected response size from BRPOP")
	}
	return res[1], nil
}

func (s *RedisStore) RequestCancel(ctx context.Context, taskID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(taskID), fieldCancelRequested, "1")
		pipe.Publish(ctx, cancelChannel, taskID)
		return nil
	})
	return err
}

// SubscribeCancels subscribes to the cancel channel. The returned close
// function ends the subscription and closes the ID channel.
func (s *RedisStore) SubscribeCancels(ctx context.Context) (<-chan string, func() error, error) {
	pubsub := s.client.Subscribe(ctx, cancelChannel)
	// Wait for the subscription confirmation so no publish is missed afterwards.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", cancelChannel, err)
	}

	ids := make(chan string)
	go func() {
		defer close(ids)
		for msg := range pubsub.Channel() {
			select {
			case ids <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ids, pubsub.Close, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func serializeTask(task *ScanTask) (map[string]interface{}, error) {
	var resultsData string
	if task.Results != nil {
		encoded, err := json.Marshal(task.Results)
		if err != nil {
			return nil, err
		}
		resultsData = string(encoded)
	}

	var summaryData string
	if task.Summary != nil {
		encoded, err := json.Marshal(task.Summary)
		if err != nil {
			return nil, err
		}
		summaryData = string(encoded)
	}

	return map[string]interface{}{
		"id":               task.ID,
		"status":           task.Status,
		"target":           task.Target,
		"ports":            task.Ports,
		"timeout_seconds":  task.TimeoutSeconds,
		"concurrency":      task.Concurrency,
		fieldProgressDone:  task.Progress.Done,
		fieldProgressTotal: task.Progress.Total,
		"summary":          summaryData,
		"complete":         strconv.FormatBool(task.Complete),
		"results":          resultsData,
		"created_at":       formatTime(&task.CreatedAt),
		"started_at":       formatTime(task.StartedAt),
		"completed_at":     formatTime(task.CompletedAt),
		"error":            task.Error,
	}, nil
}

func deserializeTask(data map[string]string) (*ScanTask, error) {
	task := &ScanTask{
		ID:              data["id"],
		Status:          data["status"],
		Target:          data["target"],
		Ports:           data["ports"],
		Error:           data["error"],
		CancelRequested: data[fieldCancelRequested] == "1",
		Complete:        data["complete"] == "true",
	}

	var err error
	ints := []struct {
		field string
		dst   *int
	}{
		{"timeout_seconds", &task.TimeoutSeconds},
		{"concurrency", &task.Concurrency},
		{fieldProgressDone, &task.Progress.Done},
		{fieldProgressTotal, &task.Progress.Total},
	}
	for _, f := range ints {
		if raw := data[f.field]; raw != "" {
			if *f.dst, err = strconv.Atoi(raw); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.field, err)
			}
		}
	}

	if raw := data["results"]; raw != "" {
		var results []output.Record
		if err := json.Unmarshal([]byte(raw), &results); err != nil {
			return nil, err
		}
		task.Results = results
	}

	if raw := data["summary"]; raw != "" {
		var summary scanner.Summary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			return nil, err
		}
		task.Summary = &summary
	}

	createdAt, err := parseTime(data["created_at"])
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		task.CreatedAt = *createdAt
	}
	if task.StartedAt, err = parseTime(data["started_at"]); err != nil {
		return nil, err
	}
	if task.CompletedAt, err = parseTime(data["completed_at"]); err != nil {
		return nil, err
	}

	return task, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
