package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OddsSync/internal/clock"
	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"

	"github.com/sirupsen/logrus"
)

// MetaKeyLastResetDate 上次执行跨天重置的日期（YYYY-MM-DD）
const MetaKeyLastResetDate = "last_reset_date"

// Registry 全量Feed调度档案。每个联赛一条记录，启动时建档，只重置不删除。
// 状态机：pending → updating → {completed | pending(重试) | failed}，
// completed/failed只对当天终态，次日重置后回到pending。
type Registry struct {
	feedRepo interfaces.FeedRepository
	metaRepo interfaces.MetaRepository
	clk      clock.Clock
	logger   *logrus.Logger
}

// NewRegistry 创建调度档案
func NewRegistry(feedRepo interfaces.FeedRepository, metaRepo interfaces.MetaRepository, clk clock.Clock, logger *logrus.Logger) *Registry {
	return &Registry{feedRepo: feedRepo, metaRepo: metaRepo, clk: clk, logger: logger}
}

// Bootstrap 按静态配置建档；已存在的Feed保留当前状态
func (r *Registry) Bootstrap(ctx context.Context, feeds []config.FeedConfig) error {
	now := r.clk.Now()
	for _, fc := range feeds {
		next, err := NextOccurrence(fc.ScheduledAt, now)
		if err != nil {
			return fmt.Errorf("Feed计划时刻不合法: %w, feed_key: %s", err, fc.Key)
		}
		feed := &model.Feed{
			FeedKey:      fc.Key,
			Title:        fc.Title,
			ScheduledAt:  fc.ScheduledAt,
			State:        model.FeedStatePending,
			NextUpdateAt: next,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := r.feedRepo.CreateIfAbsent(ctx, feed); err != nil {
			return err
		}
	}
	return r.recoverStaleUpdating(ctx, now)
}

// recoverStaleUpdating 把滞留在updating的Feed降回pending。
// 进程在拉取中途崩溃时会留下updating行，当日内DueEntries看不到它；
// 降回pending且不动next_update_at，到点即重新可调度（配额照常把关）。
func (r *Registry) recoverStaleUpdating(ctx context.Context, now time.Time) error {
	feeds, err := r.feedRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, feed := range feeds {
		if feed.State != model.FeedStateUpdating {
			continue
		}
		feed.State = model.FeedStatePending
		feed.UpdatedAt = now
		if err := r.feedRepo.Save(ctx, feed); err != nil {
			return err
		}
		r.logger.WithField("feed_key", feed.FeedKey).Warn("发现滞留在updating的Feed，已降回pending")
	}
	return nil
}

// DueEntries 到期待更新的Feed（pending且next_update_at<=now，逾期的也在内）
func (r *Registry) DueEntries(ctx context.Context, now time.Time) ([]*model.Feed, error) {
	return r.feedRepo.ListDue(ctx, now)
}

// Get 查询单个Feed档案
func (r *Registry) Get(ctx context.Context, feedKey string) (*model.Feed, error) {
	return r.feedRepo.GetByKey(ctx, feedKey)
}

// ListAll 全量Feed档案（状态接口用）
func (r *Registry) ListAll(ctx context.Context) ([]*model.Feed, error) {
	return r.feedRepo.ListAll(ctx)
}

// MarkUpdating 进入拉取中状态
func (r *Registry) MarkUpdating(ctx context.Context, feedKey string) error {
	feed, err := r.feedRepo.GetByKey(ctx, feedKey)
	if err != nil {
		return err
	}
	feed.State = model.FeedStateUpdating
	feed.UpdatedAt = r.clk.Now()
	return r.feedRepo.Save(ctx, feed)
}

// MarkCompleted 当日更新成功：清理重试痕迹，下次更新排到配置时刻的下一次出现
func (r *Registry) MarkCompleted(ctx context.Context, feedKey string) error {
	feed, err := r.feedRepo.GetByKey(ctx, feedKey)
	if err != nil {
		return err
	}
	now := r.clk.Now()
	next, err := NextOccurrence(feed.ScheduledAt, now)
	if err != nil {
		return fmt.Errorf("重算下次更新时间失败: %w, feed_key: %s", err, feedKey)
	}
	feed.State = model.FeedStateCompleted
	feed.Attempts = 0
	feed.LastError = ""
	feed.LastUpdateAt = &now
	feed.NextUpdateAt = next
	feed.UpdatedAt = now
	return r.feedRepo.Save(ctx, feed)
}

// ScheduleRetry 一次尝试失败但还有余量：记错误、攒次数，延迟retryAt后回到pending
func (r *Registry) ScheduleRetry(ctx context.Context, feedKey string, attempts int, lastError string, retryAt time.Time) error {
	feed, err := r.feedRepo.GetByKey(ctx, feedKey)
	if err != nil {
		return err
	}
	feed.State = model.FeedStatePending
	feed.Attempts = attempts
	feed.LastError = lastError
	feed.NextUpdateAt = retryAt
	feed.UpdatedAt = r.clk.Now()
	return r.feedRepo.Save(ctx, feed)
}

// MarkFailed 重试耗尽，当日终态失败
func (r *Registry) MarkFailed(ctx context.Context, feedKey string, attempts int, lastError string) error {
	feed, err := r.feedRepo.GetByKey(ctx, feedKey)
	if err != nil {
		return err
	}
	feed.State = model.FeedStateFailed
	feed.Attempts = attempts
	feed.LastError = lastError
	feed.UpdatedAt = r.clk.Now()
	return r.feedRepo.Save(ctx, feed)
}

// ResetForNewDay 每个自然日执行一次（以last_reset_date判重）：
// 全部Feed回到pending、attempts清零、错误清空、重算下次更新时间。
// 返回是否真正执行了重置。
func (r *Registry) ResetForNewDay(ctx context.Context, now time.Time) (bool, error) {
	today := now.Format("2006-01-02")
	last, err := r.metaRepo.Get(ctx, MetaKeyLastResetDate)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return false, err
	}
	if last == today {
		return false, nil
	}

	if err := r.resetAll(ctx, now, true); err != nil {
		return false, err
	}
	if err := r.metaRepo.Set(ctx, MetaKeyLastResetDate, today); err != nil {
		return false, err
	}
	r.logger.WithField("date", today).Info("跨天重置完成，全部Feed回到pending")
	return true, nil
}

// ResetAll 手动重置：全部Feed回到初始调度状态，并清掉当天的重置记录。
// 配额计数不在此处动——配额是真实世界资源，重置模拟不掉。
func (r *Registry) ResetAll(ctx context.Context) error {
	if err := r.resetAll(ctx, r.clk.Now(), false); err != nil {
		return err
	}
	return r.metaRepo.Delete(ctx, MetaKeyLastResetDate)
}

// resetAll 全部Feed回到pending并清理重试痕迹。
// staleOnly=true（跨天重置）：只重排next_update_at还停在昨天之前的条目，
// 排到今天的配置时刻；已指向今天/未来的保持不动，到点仍pending的算逾期，
// 下一轮tick照常捡起，不会被挤到明天。
// staleOnly=false（手动重置）：全部重排到今天的配置时刻，已过点即视为逾期立即可跑。
func (r *Registry) resetAll(ctx context.Context, now time.Time, staleOnly bool) error {
	feeds, err := r.feedRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, feed := range feeds {
		slotToday, err := OccurrenceOn(feed.ScheduledAt, now)
		if err != nil {
			return fmt.Errorf("重算下次更新时间失败: %w, feed_key: %s", err, feed.FeedKey)
		}
		feed.State = model.FeedStatePending
		feed.Attempts = 0
		feed.LastError = ""
		if !staleOnly || feed.NextUpdateAt.Before(startOfToday) {
			feed.NextUpdateAt = slotToday
		}
		feed.UpdatedAt = now
		if err := r.feedRepo.Save(ctx, feed); err != nil {
			return err
		}
	}
	return nil
}

// NextOccurrence 计算配置时刻（HH:MM）严格晚于now的下一次出现
func NextOccurrence(scheduledAt string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", scheduledAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析计划时刻失败（要求HH:MM格式）: %w", err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// OccurrenceOn 返回day当天的计划时刻，不做是否已过点的判断。
func OccurrenceOn(scheduledAt string, day time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", scheduledAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析计划时刻失败（要求HH:MM格式）: %w", err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
