package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
)

// 内存版仓储：与gorm实现同一套接口语义，测试和无Postgres环境下使用。

type memoryQuotaRepository struct {
	mu      sync.Mutex
	windows map[model.QuotaWindowKind]model.QuotaWindow
}

// NewMemoryQuotaRepository 创建内存版QuotaRepository
func NewMemoryQuotaRepository() interfaces.QuotaRepository {
	return &memoryQuotaRepository{windows: make(map[model.QuotaWindowKind]model.QuotaWindow)}
}

func (r *memoryQuotaRepository) GetWindow(_ context.Context, kind model.QuotaWindowKind) (*model.QuotaWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[kind]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := w
	return &cp, nil
}

func (r *memoryQuotaRepository) SaveWindow(_ context.Context, w *model.QuotaWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[w.Kind] = *w
	return nil
}

type memoryFeedRepository struct {
	mu     sync.Mutex
	feeds  map[string]model.Feed
	nextID uint64
}

// NewMemoryFeedRepository 创建内存版FeedRepository
func NewMemoryFeedRepository() interfaces.FeedRepository {
	return &memoryFeedRepository{feeds: make(map[string]model.Feed), nextID: 1}
}

func (r *memoryFeedRepository) CreateIfAbsent(_ context.Context, feed *model.Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeds[feed.FeedKey]; ok {
		return nil
	}
	feed.ID = r.nextID
	r.nextID++
	r.feeds[feed.FeedKey] = *feed
	return nil
}

func (r *memoryFeedRepository) GetByKey(_ context.Context, feedKey string) (*model.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed, ok := r.feeds[feedKey]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := feed
	return &cp, nil
}

func (r *memoryFeedRepository) ListAll(_ context.Context) ([]*model.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	feeds := make([]*model.Feed, 0, len(r.feeds))
	for _, feed := range r.feeds {
		cp := feed
		feeds = append(feeds, &cp)
	}
	sortFeeds(feeds)
	return feeds, nil
}

func (r *memoryFeedRepository) ListDue(_ context.Context, now time.Time) ([]*model.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Feed
	for _, feed := range r.feeds {
		if feed.State == model.FeedStatePending && !feed.NextUpdateAt.After(now) {
			cp := feed
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextUpdateAt.Before(due[j].NextUpdateAt) })
	return due, nil
}

func (r *memoryFeedRepository) Save(_ context.Context, feed *model.Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeds[feed.FeedKey]; !ok {
		return interfaces.ErrNotFound
	}
	r.feeds[feed.FeedKey] = *feed
	return nil
}

// sortFeeds 按feed_key排序，保证遍历顺序稳定
func sortFeeds(feeds []*model.Feed) {
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].FeedKey < feeds[j].FeedKey })
}

type memorySnapshotRepository struct {
	mu    sync.Mutex
	snaps map[string]model.Snapshot
}

// NewMemorySnapshotRepository 创建内存版SnapshotRepository
func NewMemorySnapshotRepository() interfaces.SnapshotRepository {
	return &memorySnapshotRepository{snaps: make(map[string]model.Snapshot)}
}

func (r *memorySnapshotRepository) Put(_ context.Context, snap *model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[snap.FeedKey] = *snap
	return nil
}

func (r *memorySnapshotRepository) Get(_ context.Context, feedKey string) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[feedKey]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := snap
	return &cp, nil
}

type memoryMetaRepository struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryMetaRepository 创建内存版MetaRepository
func NewMemoryMetaRepository() interfaces.MetaRepository {
	return &memoryMetaRepository{values: make(map[string]string)}
}

func (r *memoryMetaRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	if !ok {
		return "", interfaces.ErrNotFound
	}
	return v, nil
}

func (r *memoryMetaRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *memoryMetaRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}
