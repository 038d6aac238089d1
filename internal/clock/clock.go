package clock

import "time"

// Clock 时间来源抽象，测试中可用Fake模拟跨天/跨月
type Clock interface {
	Now() time.Time
	// NewTicker 返回周期信号通道和停止函数
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

// Real 真实时钟（包装time包）
type Real struct{}

func NewReal() *Real { return &Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
