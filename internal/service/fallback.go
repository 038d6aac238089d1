package service

import (
	"OddsSync/internal/clock"
	"OddsSync/internal/model"
)

// FallbackProvider 兜底数据源：Feed还没有快照、或当日已终态失败时，
// 给读者返回一份静态数据集，保证读侧永远有完整可渲染的数据。
type FallbackProvider struct {
	clk clock.Clock
}

// NewFallbackProvider 创建兜底数据源
func NewFallbackProvider(clk clock.Clock) *FallbackProvider {
	return &FallbackProvider{clk: clk}
}

// Static 返回指定Feed的静态兜底数据集。
// 只有占位行情（均注赔率），前端以source=static识别并降级展示。
func (f *FallbackProvider) Static(feedKey string) []model.PriceRecord {
	now := f.clk.Now()
	return []model.PriceRecord{
		{
			MatchID:      feedKey + "_placeholder",
			MatchName:    "暂无比赛数据",
			CommenceTime: now,
			Bookmaker:    "fallback",
			Market:       "h2h",
			Outcomes:     map[string]float64{"home": 2.0, "away": 2.0},
		},
	}
}
