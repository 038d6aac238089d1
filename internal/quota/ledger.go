package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OddsSync/internal/clock"
	"OddsSync/internal/config"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrQuotaExceeded 本次请求会突破日或月配额，提供商未被调用，计数未变化
var ErrQuotaExceeded = errors.New("API配额已耗尽")

// Stats 配额使用情况只读快照
type Stats struct {
	DailyUsed    int `json:"daily_used"`
	DailyLimit   int `json:"daily_limit"`
	MonthlyUsed  int `json:"monthly_used"`
	MonthlyLimit int `json:"monthly_limit"`
}

// Ledger 日/月双窗口配额账本，是"现在还能不能调提供商"的唯一权威。
// 检查与计数在同一把锁内完成，计数先落库后生效，防止并发超卖。
type Ledger struct {
	mu     sync.Mutex
	repo   interfaces.QuotaRepository
	clk    clock.Clock
	cfg    config.QuotaConfig
	logger *logrus.Logger

	// 内存副本只是持久层的缓存，加载后在锁内维护
	daily   *model.QuotaWindow
	monthly *model.QuotaWindow
}

// NewLedger 创建配额账本
func NewLedger(repo interfaces.QuotaRepository, clk clock.Clock, cfg config.QuotaConfig, logger *logrus.Logger) *Ledger {
	return &Ledger{repo: repo, clk: clk, cfg: cfg, logger: logger}
}

// CanConsume 判断再消耗count次是否仍在两个窗口的限额内（先做惰性滚动）
func (l *Ledger) CanConsume(ctx context.Context, count int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureWindows(ctx); err != nil {
		return false, err
	}
	return l.daily.Used+count <= l.daily.Limit && l.monthly.Used+count <= l.monthly.Limit, nil
}

// Consume 原子的"检查+计数"：锁内复查限额，通过则两个窗口同时+count并落库。
// 任一窗口会超限时返回ErrQuotaExceeded且不产生任何变更。
func (l *Ledger) Consume(ctx context.Context, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureWindows(ctx); err != nil {
		return err
	}
	if l.daily.Used+count > l.daily.Limit || l.monthly.Used+count > l.monthly.Limit {
		return ErrQuotaExceeded
	}

	// 先落库再生效：写失败时内存计数不动，下次从持久层重新对账。
	// 月窗口先写：日窗口写失败只会导致月计数偏高，多报比少报安全。
	daily, monthly := *l.daily, *l.monthly
	daily.Used += count
	monthly.Used += count
	now := l.clk.Now()
	daily.UpdatedAt, monthly.UpdatedAt = now, now

	if err := l.repo.SaveWindow(ctx, &monthly); err != nil {
		return fmt.Errorf("持久化月配额计数失败: %w", err)
	}
	if err := l.repo.SaveWindow(ctx, &daily); err != nil {
		l.monthly = &monthly
		return fmt.Errorf("持久化日配额计数失败: %w", err)
	}
	l.daily, l.monthly = &daily, &monthly
	return nil
}

// Stats 只读快照（同样触发惰性滚动，保证观测到的是当前周期）
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureWindows(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		DailyUsed:    l.daily.Used,
		DailyLimit:   l.daily.Limit,
		MonthlyUsed:  l.monthly.Used,
		MonthlyLimit: l.monthly.Limit,
	}, nil
}

// ensureWindows 懒加载+惰性滚动，调用方必须持锁
func (l *Ledger) ensureWindows(ctx context.Context) error {
	now := l.clk.Now()

	if l.daily == nil {
		w, err := l.loadOrCreate(ctx, model.QuotaWindowDaily, startOfDay(now), l.cfg.DailyLimit)
		if err != nil {
			return err
		}
		l.daily = w
	}
	if l.monthly == nil {
		w, err := l.loadOrCreate(ctx, model.QuotaWindowMonthly, startOfMonth(now), l.cfg.MonthlyLimit)
		if err != nil {
			return err
		}
		l.monthly = w
	}

	// 日滚动：存储日期与今天不同则清零；月计数绝不因为跨天被动
	if !sameDay(l.daily.PeriodStart, now) {
		if err := l.rollover(ctx, l.daily, startOfDay(now)); err != nil {
			return err
		}
		l.logger.WithField("period_start", l.daily.PeriodStart).Info("日配额窗口已滚动清零")
	}
	// 月滚动：仅自然月变化时清零
	if !sameMonth(l.monthly.PeriodStart, now) {
		if err := l.rollover(ctx, l.monthly, startOfMonth(now)); err != nil {
			return err
		}
		l.logger.WithField("period_start", l.monthly.PeriodStart).Info("月配额窗口已滚动清零")
	}
	return nil
}

// loadOrCreate 从持久层读取窗口，不存在则初始化（used=0）；限额以配置为准
func (l *Ledger) loadOrCreate(ctx context.Context, kind model.QuotaWindowKind, periodStart time.Time, limit int) (*model.QuotaWindow, error) {
	w, err := l.repo.GetWindow(ctx, kind)
	if errors.Is(err, interfaces.ErrNotFound) {
		w = &model.QuotaWindow{Kind: kind, PeriodStart: periodStart, Used: 0, Limit: limit}
		if err := l.repo.SaveWindow(ctx, w); err != nil {
			return nil, err
		}
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	w.Limit = limit
	return w, nil
}

// rollover 清零并落库；不伪造负使用量，也不跨周期返还未用配额
func (l *Ledger) rollover(ctx context.Context, w *model.QuotaWindow, periodStart time.Time) error {
	prev := *w
	w.PeriodStart = periodStart
	w.Used = 0
	w.UpdatedAt = l.clk.Now()
	if err := l.repo.SaveWindow(ctx, w); err != nil {
		*w = prev
		return fmt.Errorf("持久化%s配额滚动失败: %w", w.Kind, err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
