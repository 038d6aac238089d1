package clock

import (
	"sync"
	"time"
)

// Fake 可手动拨动的测试时钟
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now, tick: make(chan time.Time, 16)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set 直接设置当前时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance 向前拨动时钟
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// TickNow 手动触发一次tick信号
func (f *Fake) TickNow() {
	f.tick <- f.Now()
}

func (f *Fake) NewTicker(_ time.Duration) (<-chan time.Time, func()) {
	return f.tick, func() {}
}
