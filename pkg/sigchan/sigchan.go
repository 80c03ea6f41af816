package sigchan

// Chan 是一个非阻塞的信号 channel，只通知"有事发生"，不传递数据。
// 满时丢弃信号：消费者醒来后应自行读取最新状态，因此丢弃是安全的。
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞）。返回 false 表示信号被丢弃（channel 已满）。
func (c *Chan) Emit() bool {
	if c == nil {
		return false
	}
	select {
	case c.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.c
}
