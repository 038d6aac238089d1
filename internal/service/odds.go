package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"
	"OddsSync/internal/schedule"

	"github.com/sirupsen/logrus"
)

// 赔率数据来源标识
const (
	SourceLive          = "live"            // 当日新鲜快照
	SourceLastKnownGood = "last-known-good" // 当日失败，回退到历史快照
	SourceStatic        = "static"          // 无快照，静态兜底
)

// FeedOdds 读侧视图：一个Feed当前可读的完整数据集
type FeedOdds struct {
	FeedKey   string              `json:"feed_key"`
	Title     string              `json:"title"`
	State     model.FeedState     `json:"state"`
	Source    string              `json:"source"`
	FetchedAt *time.Time          `json:"fetched_at,omitempty"`
	Records   []model.PriceRecord `json:"records"`
}

// FeedStatus 读侧视图：单个Feed的调度状态
type FeedStatus struct {
	FeedKey      string          `json:"feed_key"`
	Title        string          `json:"title"`
	ScheduledAt  string          `json:"scheduled_at"`
	State        model.FeedState `json:"state"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"last_error,omitempty"`
	LastUpdateAt *time.Time      `json:"last_update_at,omitempty"`
	NextUpdateAt time.Time       `json:"next_update_at"`
	Overdue      bool            `json:"overdue"`
}

// OddsService 读侧服务。读者只读Executor写下的最新快照，绝不直接调提供商，
// 也绝不被调度侧阻塞。
type OddsService struct {
	registry *schedule.Registry
	snapRepo interfaces.SnapshotRepository
	fallback *FallbackProvider
	logger   *logrus.Logger
}

// NewOddsService 创建读侧服务
func NewOddsService(registry *schedule.Registry, snapRepo interfaces.SnapshotRepository, fallback *FallbackProvider, logger *logrus.Logger) *OddsService {
	return &OddsService{registry: registry, snapRepo: snapRepo, fallback: fallback, logger: logger}
}

// GetFeedOdds 返回一个Feed当前可读的数据集：
// 有快照给快照（当日失败则标记为last-known-good），没有快照给静态兜底。
func (s *OddsService) GetFeedOdds(ctx context.Context, feedKey string) (*FeedOdds, error) {
	feed, err := s.registry.Get(ctx, feedKey)
	if err != nil {
		return nil, err
	}
	return s.buildFeedOdds(ctx, feed)
}

// ListAllOdds 全量Feed的当前可读数据集，兜底语义与单Feed查询一致
func (s *OddsService) ListAllOdds(ctx context.Context) ([]FeedOdds, error) {
	feeds, err := s.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]FeedOdds, 0, len(feeds))
	for _, feed := range feeds {
		result, err := s.buildFeedOdds(ctx, feed)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *OddsService) buildFeedOdds(ctx context.Context, feed *model.Feed) (*FeedOdds, error) {
	result := &FeedOdds{
		FeedKey: feed.FeedKey,
		Title:   feed.Title,
		State:   feed.State,
	}

	snap, err := s.snapRepo.Get(ctx, feed.FeedKey)
	if errors.Is(err, interfaces.ErrNotFound) {
		result.Source = SourceStatic
		result.Records = s.fallback.Static(feed.FeedKey)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	var records []model.PriceRecord
	if err := json.Unmarshal(snap.Records, &records); err != nil {
		return nil, fmt.Errorf("反序列化快照失败: %w, feed_key: %s", err, feed.FeedKey)
	}
	result.Records = records
	result.FetchedAt = &snap.FetchedAt
	if feed.State == model.FeedStateFailed {
		result.Source = SourceLastKnownGood
	} else {
		result.Source = SourceLive
	}
	return result, nil
}

// ListFeeds 全量Feed调度状态视图
func (s *OddsService) ListFeeds(ctx context.Context, now time.Time) ([]FeedStatus, error) {
	feeds, err := s.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]FeedStatus, 0, len(feeds))
	for _, feed := range feeds {
		statuses = append(statuses, FeedStatus{
			FeedKey:      feed.FeedKey,
			Title:        feed.Title,
			ScheduledAt:  feed.ScheduledAt,
			State:        feed.State,
			Attempts:     feed.Attempts,
			LastError:    feed.LastError,
			LastUpdateAt: feed.LastUpdateAt,
			NextUpdateAt: feed.NextUpdateAt,
			// 逾期：到点仍pending，等下一轮tick捡起，不会被丢弃
			Overdue: feed.State == model.FeedStatePending && !feed.NextUpdateAt.After(now),
		})
	}
	return statuses, nil
}
