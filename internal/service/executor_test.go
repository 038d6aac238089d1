package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OddsSync/internal/clock"
	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
	"OddsSync/internal/quota"
	"OddsSync/internal/repository"
	"OddsSync/internal/schedule"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher 可编程的OddsFetcher假实现，记录真实调用次数
type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(feedKey string) ([]model.PriceRecord, error)
}

func (f *scriptedFetcher) FetchOdds(_ context.Context, feedKey string) ([]model.PriceRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(feedKey)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// capturePublisher 记录所有广播事件
type capturePublisher struct {
	mu     sync.Mutex
	events []model.BroadcastEvent
}

func (p *capturePublisher) Publish(event model.BroadcastEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturePublisher) byType(t model.BroadcastEventType) []model.BroadcastEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.BroadcastEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type executorEnv struct {
	executor  *Executor
	registry  *schedule.Registry
	ledger    *quota.Ledger
	fetcher   *scriptedFetcher
	publisher *capturePublisher
	snapRepo  interfaces.SnapshotRepository
	clk       *clock.Fake
}

var testRecords = []model.PriceRecord{
	{
		MatchID:   "m1",
		MatchName: "Arsenal vs Chelsea",
		Bookmaker: "pinnacle",
		Market:    "h2h",
		Outcomes:  map[string]float64{"home": 2.1, "away": 3.4, "draw": 3.2},
	},
}

func newExecutorEnv(t *testing.T, now time.Time, dailyLimit int, feeds []config.FeedConfig) *executorEnv {
	t.Helper()
	clk := clock.NewFake(now)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	registry := schedule.NewRegistry(repository.NewMemoryFeedRepository(), repository.NewMemoryMetaRepository(), clk, logger)
	require.NoError(t, registry.Bootstrap(context.Background(), feeds))

	ledger := quota.NewLedger(repository.NewMemoryQuotaRepository(), clk, config.QuotaConfig{DailyLimit: dailyLimit, MonthlyLimit: 500}, logger)
	fetcher := &scriptedFetcher{fn: func(string) ([]model.PriceRecord, error) { return testRecords, nil }}
	publisher := &capturePublisher{}
	snapRepo := repository.NewMemorySnapshotRepository()

	schedCfg := config.SchedulerConfig{TickInterval: time.Minute, MaxAttempts: 3, RetryDelay: 5 * time.Minute}
	executor := NewExecutor(registry, ledger, fetcher, snapRepo, publisher, clk, schedCfg, logger)
	return &executorEnv{
		executor:  executor,
		registry:  registry,
		ledger:    ledger,
		fetcher:   fetcher,
		publisher: publisher,
		snapRepo:  snapRepo,
		clk:       clk,
	}
}

var oneFeed = []config.FeedConfig{{Key: "soccer_epl", Title: "英超", ScheduledAt: "09:00"}}

// 幂等：同一天反复执行（含force），只有一次真实拉取和一次配额扣减
func TestExecuteIdempotentPerDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	ctx := context.Background()

	outcome, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)

	for i := 0; i < 5; i++ {
		outcome, err = env.executor.Execute(ctx, "soccer_epl")
		require.NoError(t, err)
		require.Equal(t, OutcomeSkippedCompleted, outcome)
	}

	require.Equal(t, 1, env.fetcher.callCount())
	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DailyUsed)
	require.Len(t, env.publisher.byType(model.EventFeedUpdated), 1)
}

func TestExecuteWritesSnapshot(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	ctx := context.Background()

	_, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)

	snap, err := env.snapRepo.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.True(t, snap.FetchedAt.Equal(now))
	require.NotEmpty(t, snap.Records)
}

// 提供商返回nil记录集时快照落库为[]而非null
func TestExecuteStoresNilRecordsAsEmptyList(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	env.fetcher.fn = func(string) ([]model.PriceRecord, error) { return nil, nil }
	ctx := context.Background()

	outcome, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)

	snap, err := env.snapRepo.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(snap.Records))
}

// 场景B：配额已耗尽→跳过，不接触提供商，used不变，Feed保持pending
func TestExecuteSkipsWhenQuotaExhausted(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	ctx := context.Background()

	// 先把6个额度用光
	require.NoError(t, env.ledger.Consume(ctx, 6))

	outcome, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedQuota, outcome)
	require.Equal(t, 0, env.fetcher.callCount())

	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, stats.DailyUsed)

	feed, err := env.registry.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, model.FeedStatePending, feed.State)
}

// 重试边界：连续失败走 pending→updating→pending(retry) 两次后终态failed，
// 每次重试排在上次尝试至少5分钟之后
func TestExecuteRetryBoundAndSpacing(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	env.fetcher.fn = func(string) ([]model.PriceRecord, error) {
		return nil, errors.New("接口超时")
	}
	ctx := context.Background()

	// 第1次尝试→排重试
	outcome, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeRetrying, outcome)
	feed, err := env.registry.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, model.FeedStatePending, feed.State)
	require.Equal(t, 1, feed.Attempts)
	firstAttemptAt := env.clk.Now()
	require.False(t, feed.NextUpdateAt.Before(firstAttemptAt.Add(5*time.Minute)))

	// 第2次尝试→再排重试
	env.clk.Advance(5 * time.Minute)
	outcome, err = env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeRetrying, outcome)
	feed, err = env.registry.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, 2, feed.Attempts)
	require.False(t, feed.NextUpdateAt.Before(env.clk.Now().Add(5*time.Minute)))

	// 第3次尝试→终态failed（场景C）
	env.clk.Advance(5 * time.Minute)
	outcome, err = env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	feed, err = env.registry.Get(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, model.FeedStateFailed, feed.State)
	require.Equal(t, 3, feed.Attempts)
	require.Equal(t, "接口超时", feed.LastError)

	// 3次真实尝试各扣一次配额，成功广播为0
	require.Equal(t, 3, env.fetcher.callCount())
	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.DailyUsed)
	require.Empty(t, env.publisher.byType(model.EventFeedUpdated))
}

// 场景C延伸：终态失败的Feed，读侧拿到静态兜底数据
func TestFailedFeedFallsBackToStatic(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	env.fetcher.fn = func(string) ([]model.PriceRecord, error) {
		return nil, errors.New("接口超时")
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.executor.Execute(ctx, "soccer_epl")
		require.NoError(t, err)
		env.clk.Advance(5 * time.Minute)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	oddsService := NewOddsService(env.registry, env.snapRepo, NewFallbackProvider(env.clk), logger)
	result, err := oddsService.GetFeedOdds(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, SourceStatic, result.Source)
	require.NotEmpty(t, result.Records)
}

// 有历史快照的失败Feed回退到last-known-good
func TestFailedFeedServesLastKnownGood(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 20, oneFeed)
	ctx := context.Background()

	// 第一天成功
	_, err := env.executor.Execute(ctx, "soccer_epl")
	require.NoError(t, err)

	// 次日重置后连续失败
	env.clk.Set(time.Date(2025, 3, 11, 9, 5, 0, 0, time.UTC))
	_, err = env.registry.ResetForNewDay(ctx, env.clk.Now())
	require.NoError(t, err)
	env.fetcher.fn = func(string) ([]model.PriceRecord, error) {
		return nil, errors.New("接口超时")
	}
	for i := 0; i < 3; i++ {
		_, err := env.executor.Execute(ctx, "soccer_epl")
		require.NoError(t, err)
		env.clk.Advance(5 * time.Minute)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	oddsService := NewOddsService(env.registry, env.snapRepo, NewFallbackProvider(env.clk), logger)
	result, err := oddsService.GetFeedOdds(ctx, "soccer_epl")
	require.NoError(t, err)
	require.Equal(t, SourceLastKnownGood, result.Source)
	require.Len(t, result.Records, len(testRecords))
}

// 并发执行同一Feed：锁保证只有一次真实拉取
func TestConcurrentExecuteSingleFetch(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	env := newExecutorEnv(t, now, 6, oneFeed)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.executor.Execute(ctx, "soccer_epl")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, env.fetcher.callCount())
	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DailyUsed)
}

// 多Feed并发+配额上限：总调用数不超过限额
func TestConcurrentFeedsRespectDailyLimit(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	feeds := []config.FeedConfig{
		{Key: "f1", Title: "f1", ScheduledAt: "09:00"},
		{Key: "f2", Title: "f2", ScheduledAt: "10:00"},
		{Key: "f3", Title: "f3", ScheduledAt: "11:00"},
		{Key: "f4", Title: "f4", ScheduledAt: "12:00"},
		{Key: "f5", Title: "f5", ScheduledAt: "13:00"},
		{Key: "f6", Title: "f6", ScheduledAt: "14:00"},
		{Key: "f7", Title: "f7", ScheduledAt: "14:30"},
		{Key: "f8", Title: "f8", ScheduledAt: "14:45"},
	}
	env := newExecutorEnv(t, now, 6, feeds)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, fc := range feeds {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = env.executor.Execute(ctx, key)
		}(fc.Key)
	}
	wg.Wait()

	require.Equal(t, 6, env.fetcher.callCount())
	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, stats.DailyUsed)
	require.LessOrEqual(t, stats.DailyUsed, stats.DailyLimit)
}
