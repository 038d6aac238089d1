package service

import (
	"context"
	"sync"
	"time"

	"OddsSync/internal/clock"
	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
	"OddsSync/internal/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler 单实例调度服务：持有tick循环，按周期扫描到期Feed并交给Executor。
// 全系统只允许一个实例驱动同一套配额账本和持久层，否则会出现配额重复计数。
type Scheduler struct {
	registry    *schedule.Registry
	executor    *Executor
	broadcaster interfaces.Publisher
	clk         clock.Clock
	cfg         config.SchedulerConfig
	logger      *logrus.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewScheduler 创建调度服务
func NewScheduler(
	registry *schedule.Registry,
	executor *Executor,
	broadcaster interfaces.Publisher,
	clk clock.Clock,
	cfg config.SchedulerConfig,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		registry:    registry,
		executor:    executor,
		broadcaster: broadcaster,
		clk:         clk,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start 启动tick循环；幂等，已运行时为no-op
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)
	s.logger.WithField("tick_interval", s.cfg.TickInterval).Info("调度服务已启动")
}

// Stop 停止tick循环；进行中的拉取不被打断，只是不再开始新的
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.logger.Info("调度服务已停止")
}

// Running 当前是否在运行（状态接口用）
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ForceUpdate 手动触发单个Feed：绕过到期时间门，但幂等门和配额门照旧生效
func (s *Scheduler) ForceUpdate(ctx context.Context, feedKey string) (Outcome, error) {
	return s.executor.Execute(ctx, feedKey)
}

// ForceUpdateAll 手动触发全部Feed，串行执行
func (s *Scheduler) ForceUpdateAll(ctx context.Context) (map[string]Outcome, error) {
	feeds, err := s.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make(map[string]Outcome, len(feeds))
	for _, feed := range feeds {
		outcome, err := s.executor.Execute(ctx, feed.FeedKey)
		if err != nil {
			s.logger.WithError(err).WithField("feed_key", feed.FeedKey).Error("手动更新执行出错")
		}
		outcomes[feed.FeedKey] = outcome
	}
	s.publishCycleCompleted()
	return outcomes, nil
}

// Reset 全部Feed回到初始调度状态；配额计数不动（真实世界资源，重置模拟不掉）
func (s *Scheduler) Reset(ctx context.Context) error {
	return s.registry.ResetAll(ctx)
}

// run tick循环主体：跨天重置→扫描到期→逐个串行执行。
// 串行（并发度1）保证慢提供商不会让多个Feed非确定地争抢同一份预算。
func (s *Scheduler) run(stopCh chan struct{}) {
	tick, stop := s.clk.NewTicker(s.cfg.TickInterval)
	defer stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-tick:
			s.runCycle(context.Background(), now)
		}
	}
}

// runCycle 一轮调度。单个Feed的失败/配额耗尽只影响自己，循环继续下一个。
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) {
	if _, err := s.registry.ResetForNewDay(ctx, now); err != nil {
		s.logger.WithError(err).Error("跨天重置失败，本轮跳过")
		return
	}

	due, err := s.registry.DueEntries(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("扫描到期Feed失败，本轮跳过")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.WithField("due", len(due)).Info("本轮到期Feed开始更新")
	for _, feed := range due {
		outcome, err := s.executor.Execute(ctx, feed.FeedKey)
		if err != nil {
			s.logger.WithError(err).WithField("feed_key", feed.FeedKey).Error("更新执行出错")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"feed_key": feed.FeedKey,
			"outcome":  outcome,
		}).Debug("更新执行完成")
	}
	s.publishCycleCompleted()
}

func (s *Scheduler) publishCycleCompleted() {
	s.broadcaster.Publish(model.BroadcastEvent{
		ID:        uuid.NewString(),
		Type:      model.EventCycleCompleted,
		Timestamp: s.clk.Now(),
	})
}
