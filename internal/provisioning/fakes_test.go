package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// memStore is a map-backed Store with failure switches
type memStore struct {
	mu       sync.Mutex
	channels map[string]models.Channel
	usage    map[string]models.UsageRecord

	listErr        error
	deleteUsageErr error
}

func newMemStore() *memStore {
	return &memStore{
		channels: make(map[string]models.Channel),
		usage:    make(map[string]models.UsageRecord),
	}
}

func (s *memStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	now := time.Now()
	ch.CreatedAt, ch.UpdatedAt = now, now
	s.channels[ch.ID] = *ch
	return nil
}

func (s *memStore) UpdateChannel(ctx context.Context, id string, patch models.ChannelPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return ErrChannelNotFound
	}
	patch.Apply(&ch)
	ch.UpdatedAt = time.Now()
	s.channels[id] = ch
	return nil
}

func (s *memStore) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return &ch, nil
}

func (s *memStore) ListChannelsByTenant(ctx context.Context, tenantID string) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Channel
	for _, ch := range s.channels {
		if ch.TenantID == tenantID {
			c := ch
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) ListChannelsByStatus(ctx context.Context, statuses ...models.ChannelStatus) ([]*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Channel
	for _, ch := range s.channels {
		for _, st := range statuses {
			if ch.Status == st {
				c := ch
				out = append(out, &c)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) DeleteChannel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return ErrChannelNotFound
	}
	delete(s.channels, id)
	return nil
}

func (s *memStore) CreateUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage[rec.ChannelID] = *rec
	return nil
}

func (s *memStore) GetUsageRecord(ctx context.Context, channelID string) (*models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usage[channelID]
	if !ok {
		return nil, ErrUsageRecordNotFound
	}
	return &rec, nil
}

func (s *memStore) DeleteUsageRecord(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteUsageErr != nil {
		return s.deleteUsageErr
	}
	delete(s.usage, channelID)
	return nil
}

// seed stores a channel directly
func (s *memStore) seed(ch models.Channel) *models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	s.channels[ch.ID] = ch
	return &ch
}

// fakeCompute simulates an instance that becomes ready after a number of polls
type fakeCompute struct {
	mu sync.Mutex

	allocErr     error
	readyAfter   int // Describe calls before the instance is running; <0 never
	terminateErr string

	allocations   int
	describeCalls int
	scripts       []string
	terminated    []string
}

var errProviderDown = errors.New("provider unreachable")

func (f *fakeCompute) Allocate(ctx context.Context, channelID, script string) (*compute.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scripts = append(f.scripts, script)
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	f.allocations++
	return &compute.Allocation{InstanceID: "i-real-" + channelID}, nil
}

func (f *fakeCompute) Terminate(ctx context.Context, instanceID string) compute.TerminationResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.terminated = append(f.terminated, instanceID)
	if f.terminateErr != "" {
		return compute.TerminationResult{Success: false, Error: f.terminateErr}
	}
	return compute.TerminationResult{Success: true}
}

func (f *fakeCompute) Describe(ctx context.Context, instanceID string) (*compute.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describeCalls++
	if f.readyAfter < 0 || f.describeCalls <= f.readyAfter {
		return &compute.Instance{ID: instanceID, State: compute.StatePending}, nil
	}
	return &compute.Instance{
		ID:             instanceID,
		State:          compute.StateRunning,
		PublicAddress:  "203.0.113.7",
		PrivateAddress: "10.0.0.7",
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
	err    error
}

func (p *recordingPublisher) PublishLifecycle(ctx context.Context, event models.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (l *countingLocker) Acquire(ctx context.Context, channelID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

type memArchive struct {
	scripts map[string]string
}

func (a *memArchive) Archive(ctx context.Context, channelID, script string) error {
	if a.scripts == nil {
		a.scripts = make(map[string]string)
	}
	a.scripts[channelID] = script
	return nil
}

// blockingCompute parks the first readiness poll until released
type blockingCompute struct {
	*fakeCompute
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingCompute() *blockingCompute {
	return &blockingCompute{
		fakeCompute: &fakeCompute{},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (b *blockingCompute) Describe(ctx context.Context, instanceID string) (*compute.Instance, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.fakeCompute.Describe(ctx, instanceID)
}

func (b *blockingCompute) terminatedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.terminated...)
}

// mutexLocker is an in-process per-channel Locker
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *mutexLocker) Acquire(ctx context.Context, channelID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[channelID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[channelID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// typedCompute reports an instance type on allocation
type typedCompute struct {
	*fakeCompute
	instanceType string
}

func (c *typedCompute) Allocate(ctx context.Context, channelID, script string) (*compute.Allocation, error) {
	alloc, err := c.fakeCompute.Allocate(ctx, channelID, script)
	if err != nil {
		return nil, err
	}
	alloc.InstanceType = c.instanceType
	return alloc, nil
}
