package model

import "time"

// BroadcastEventType 广播事件类型
type BroadcastEventType string

const (
	EventFeedUpdated    BroadcastEventType = "feed-updated"    // 单个Feed更新完成
	EventCycleCompleted BroadcastEventType = "cycle-completed" // 一轮调度循环结束
)

// BroadcastEvent 推送给订阅者的更新通知，订阅者据此刷新视图而无需轮询提供商
type BroadcastEvent struct {
	ID        string             `json:"id"`
	Type      BroadcastEventType `json:"type"`
	FeedKey   string             `json:"feed_key,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
