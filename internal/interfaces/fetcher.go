package interfaces

import (
	"context"

	"OddsSync/internal/model"
)

// OddsFetcher 从赔率提供商拉取一个Feed的原始赔率记录。
// 调度器把每次调用都视为消耗配额的操作，且可能阻塞或失败，不解释记录内容。
type OddsFetcher interface {
	FetchOdds(ctx context.Context, feedKey string) ([]model.PriceRecord, error)
}

// Publisher 更新完成事件的发布接口（由broadcast.Broadcaster实现）
type Publisher interface {
	Publish(event model.BroadcastEvent)
}
