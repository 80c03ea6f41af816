package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/riskcore/pkg/sigchan"
)

var log = logrus.WithField("module", "events")

// KillSwitchChangedEvent 熔断开关状态变化
type KillSwitchChangedEvent struct {
	Active    bool
	Reason    string
	Timestamp time.Time
}

// DailyResetEvent 日内状态重置
type DailyResetEvent struct {
	PrevDailyPnL string // decimal 字符串，避免订阅方依赖具体数值类型
	Timestamp    time.Time
}

// ThrottleChangedEvent 漂移限流状态变化
type ThrottleChangedEvent struct {
	Active      bool
	Reason      string
	ActiveUntil time.Time
	Timestamp   time.Time
}

// Handler 事件处理回调。Publish 同步调用，处理函数必须快速返回。
type Handler func(event interface{})

// Bus 进程内事件总线（回调注册表）。
// 设计目标：风控核心的通知（漂移事件、熔断广播）不绑定任何具体事件库，
// 订阅方 panic 不得影响发布方。
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler

	// wake 在每次 Publish 后发出非阻塞信号，供 select 循环型消费者使用
	wake *sigchan.Chan
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		wake: sigchan.New(1),
	}
}

// Subscribe 注册事件处理回调
func (b *Bus) Subscribe(h Handler) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish 同步发布事件到所有订阅者
func (b *Bus) Publish(event interface{}) {
	if b == nil || event == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, event)
	}
	b.wake.Emit()
}

// Wake 返回发布信号 channel（用于 select）
func (b *Bus) Wake() <-chan struct{} {
	if b == nil {
		return nil
	}
	return b.wake.C()
}

func (b *Bus) safeCall(h Handler, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("事件订阅者 panic（已忽略）: %v", r)
		}
	}()
	h(event)
}
