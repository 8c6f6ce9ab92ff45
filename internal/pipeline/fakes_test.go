package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/models"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
)

type fakeSource struct {
	summaries map[string]models.RawSummary
	channels  map[string][]models.RawChannel
	err       error
	version   string
	calls     []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchSummary(_ context.Context, date string) (models.RawSummary, error) {
	f.calls = append(f.calls, "summary:"+date)
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries[date], nil
}

func (f *fakeSource) FetchChannels(_ context.Context, date string) ([]models.RawChannel, error) {
	f.calls = append(f.calls, "channels:"+date)
	if f.err != nil {
		return nil, f.err
	}
	return f.channels[date], nil
}

func (f *fakeSource) Version(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.version, nil
}

// memoryStore plays the role of the database across connections.
type memoryStore struct {
	mu        sync.Mutex
	daily     map[string]models.DailyMetric
	channels  map[string]models.ChannelMetric
	failDates map[string]bool
	opened    int
	closed    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		daily:     map[string]models.DailyMetric{},
		channels:  map[string]models.ChannelMetric{},
		failDates: map[string]bool{},
	}
}

func (s *memoryStore) Connect(context.Context) (repository.MetricsRepository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &memoryRepo{store: s}, nil
}

func (s *memoryStore) channelCount(date string) int {
	n := 0
	for _, c := range s.channels {
		if c.Date.Format(models.DateLayout) == date {
			n++
		}
	}
	return n
}

type memoryRepo struct {
	store *memoryStore
}

func (r *memoryRepo) UpsertSummary(_ context.Context, m *models.DailyMetric) error {
	if m == nil {
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.failDates[m.DateString()] {
		return errors.New("write daily_metrics: connection reset")
	}
	r.store.daily[m.DateString()] = *m
	return nil
}

func (r *memoryRepo) UpsertChannels(_ context.Context, channels []*models.ChannelMetric) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, c := range channels {
		r.store.channels[c.Date.Format(models.DateLayout)+"/"+c.Channel] = *c
	}
	return nil
}

func (r *memoryRepo) GetDailyMetric(context.Context, time.Time) (*models.DailyMetric, error) {
	return nil, nil
}

func (r *memoryRepo) ListDailyMetrics(context.Context, time.Time, time.Time) ([]*models.DailyMetric, error) {
	return nil, nil
}

func (r *memoryRepo) ListChannelMetrics(context.Context, time.Time, time.Time) ([]*models.ChannelMetric, error) {
	return nil, nil
}

func (r *memoryRepo) Close() error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.closed++
	return nil
}
