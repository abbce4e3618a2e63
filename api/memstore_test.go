package api

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memStore is an in-memory TaskStore. Tasks are stored through the Redis
// field encoding so tests observe the same round trip as production.
type memStore struct {
	mu          sync.Mutex
	tasks       map[string]map[string]string
	queue       chan string
	subscribers []chan string
	pingErr     error
	pushErr     error
	progress    []Progress
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[string]map[string]string),
		queue: make(chan string, 64),
	}
}

func (m *memStore) write(task *ScanTask) error {
	data, err := serializeTask(task)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.tasks[task.ID]
	if !ok {
		fields = make(map[string]string)
		m.tasks[task.ID] = fields
	}
	for k, v := range data {
		fields[k] = toString(v)
	}
	return nil
}

func (m *memStore) CreateTask(_ context.Context, task *ScanTask) error {
	return m.write(task)
}

func (m *memStore) GetTask(_ context.Context, id string) (*ScanTask, error) {
	m.mu.Lock()
	fields, ok := m.tasks[id]
	snapshot := make(map[string]string, len(fields))
	for k, v := range fields {
		snapshot[k] = v
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return deserializeTask(snapshot)
}

func (m *memStore) UpdateTask(_ context.Context, task *ScanTask) error {
	return m.write(task)
}

func (m *memStore) UpdateProgress(_ context.Context, id string, progress Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fields, ok := m.tasks[id]; ok {
		fields[fieldProgressDone] = toString(progress.Done)
		fields[fieldProgressTotal] = toString(progress.Total)
	}
	m.progress = append(m.progress, progress)
	return nil
}

func (m *memStore) PushToQueue(_ context.Context, taskID string) error {
	if m.pushErr != nil {
		return m.pushErr
	}
	m.queue <- taskID
	return nil
}

func (m *memStore) PopFromQueue(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case id := <-m.queue:
		return id, nil
	case <-time.After(timeout):
		return "", ErrQueueEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *memStore) RequestCancel(_ context.Context, taskID string) error {
	m.mu.Lock()
	if fields, ok := m.tasks[taskID]; ok {
		fields[fieldCancelRequested] = "1"
	}
	subs := append([]chan string(nil), m.subscribers...)
	m.mu.Unlock()
	for _, ch := range subs {
		ch <- taskID
	}
	return nil
}

func (m *memStore) SubscribeCancels(_ context.Context) (<-chan string, func() error, error) {
	ch := make(chan string, 16)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch, func() error { return nil }, nil
}

func (m *memStore) Ping(context.Context) error {
	return m.pingErr
}

func (m *memStore) queued() int {
	return len(m.queue)
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	default:
		panic("unexpected field type")
	}
}
