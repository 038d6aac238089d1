package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"OddsSync/internal/clock"
	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
	"OddsSync/internal/quota"
	"OddsSync/internal/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Outcome 单次更新尝试的结果
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"           // 拉取成功，快照已替换
	OutcomeSkippedCompleted Outcome = "skipped-completed" // 当日已完成，幂等跳过
	OutcomeSkippedQuota     Outcome = "skipped-quota"     // 配额耗尽，未接触提供商
	OutcomeRetrying         Outcome = "retrying"          // 失败，已排入延迟重试
	OutcomeFailed           Outcome = "failed"            // 重试耗尽，当日终态失败
	OutcomeAborted          Outcome = "aborted"           // 持久层故障，本次尝试放弃
)

// Executor 编排单个Feed的一次更新：配额→拉取→落库→广播。
// 每个feed_key一把锁，定时tick和手动force同时到达也只会有一次真实拉取。
type Executor struct {
	registry    *schedule.Registry
	ledger      *quota.Ledger
	fetcher     interfaces.OddsFetcher
	snapRepo    interfaces.SnapshotRepository
	broadcaster interfaces.Publisher
	clk         clock.Clock
	cfg         config.SchedulerConfig
	logger      *logrus.Logger

	mu        sync.Mutex
	feedLocks map[string]*sync.Mutex
}

// NewExecutor 创建更新执行器
func NewExecutor(
	registry *schedule.Registry,
	ledger *quota.Ledger,
	fetcher interfaces.OddsFetcher,
	snapRepo interfaces.SnapshotRepository,
	broadcaster interfaces.Publisher,
	clk clock.Clock,
	cfg config.SchedulerConfig,
	logger *logrus.Logger,
) *Executor {
	return &Executor{
		registry:    registry,
		ledger:      ledger,
		fetcher:     fetcher,
		snapRepo:    snapRepo,
		broadcaster: broadcaster,
		clk:         clk,
		cfg:         cfg,
		logger:      logger,
		feedLocks:   make(map[string]*sync.Mutex),
	}
}

// Execute 执行一个Feed的一次更新尝试。
// 保证：同一天至多一次成功拉取；每次真实尝试恰好扣一次配额；
// 每次成功恰好一次快照写入和一次广播。
func (e *Executor) Execute(ctx context.Context, feedKey string) (Outcome, error) {
	lock := e.lockFor(feedKey)
	lock.Lock()
	defer lock.Unlock()

	feed, err := e.registry.Get(ctx, feedKey)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("读取Feed档案失败: %w", err)
	}

	// 幂等门：当日已完成就不再接触提供商，force也绕不过
	if feed.State == model.FeedStateCompleted {
		return OutcomeSkippedCompleted, nil
	}

	// 原子的检查+扣减。扣减先落库再调提供商：崩在中间顶多多报，不会少报。
	// 扣不到额度时提供商未被调用，计数无变化，Feed保持pending等次日。
	if err := e.ledger.Consume(ctx, 1); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			e.logger.WithField("feed_key", feedKey).Warn("配额耗尽，跳过本次更新")
			return OutcomeSkippedQuota, nil
		}
		return OutcomeAborted, fmt.Errorf("配额扣减失败: %w", err)
	}

	if err := e.registry.MarkUpdating(ctx, feedKey); err != nil {
		return OutcomeAborted, err
	}

	records, fetchErr := e.fetcher.FetchOdds(ctx, feedKey)
	if fetchErr == nil {
		if err := e.saveSnapshot(ctx, feedKey, records); err != nil {
			// 提供商已应答但快照写不进去：按一次失败走重试，配额照常已计
			fetchErr = err
		}
	}

	if fetchErr != nil {
		return e.handleFailure(ctx, feedKey, feed.Attempts+1, fetchErr)
	}

	if err := e.registry.MarkCompleted(ctx, feedKey); err != nil {
		return OutcomeAborted, err
	}
	e.broadcaster.Publish(model.BroadcastEvent{
		ID:        uuid.NewString(),
		Type:      model.EventFeedUpdated,
		FeedKey:   feedKey,
		Timestamp: e.clk.Now(),
	})
	e.logger.WithField("feed_key", feedKey).Info("Feed更新成功")
	return OutcomeSuccess, nil
}

// handleFailure 失败分支：未到上限排5分钟后重试，到上限记当日终态失败
func (e *Executor) handleFailure(ctx context.Context, feedKey string, attempts int, cause error) (Outcome, error) {
	log := e.logger.WithError(cause).WithFields(logrus.Fields{
		"feed_key": feedKey,
		"attempts": attempts,
	})

	if attempts < e.cfg.MaxAttempts {
		retryAt := e.clk.Now().Add(e.cfg.RetryDelay)
		if err := e.registry.ScheduleRetry(ctx, feedKey, attempts, cause.Error(), retryAt); err != nil {
			return OutcomeAborted, err
		}
		log.WithField("retry_at", retryAt).Warn("Feed更新失败，已排入重试")
		return OutcomeRetrying, nil
	}

	if err := e.registry.MarkFailed(ctx, feedKey, attempts, cause.Error()); err != nil {
		return OutcomeAborted, err
	}
	log.Error("Feed更新失败且重试耗尽，当日不再尝试")
	return OutcomeFailed, nil
}

// saveSnapshot 序列化并整行替换快照；nil记录集按空集落库，读者拿到[]而非null
func (e *Executor) saveSnapshot(ctx context.Context, feedKey string, records []model.PriceRecord) error {
	if records == nil {
		records = []model.PriceRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("序列化赔率记录失败: %w", err)
	}
	snap := &model.Snapshot{
		FeedKey:   feedKey,
		Records:   datatypes.JSON(payload),
		FetchedAt: e.clk.Now(),
	}
	if err := e.snapRepo.Put(ctx, snap); err != nil {
		return fmt.Errorf("写入快照失败: %w", err)
	}
	return nil
}

func (e *Executor) lockFor(feedKey string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.feedLocks[feedKey]
	if !ok {
		lock = &sync.Mutex{}
		e.feedLocks[feedKey] = lock
	}
	return lock
}
