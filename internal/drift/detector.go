package drift

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/riskcore/internal/events"
	"github.com/betbot/riskcore/internal/metrics"
)

var log = logrus.WithField("module", "drift")

// EventKind 漂移事件类型
type EventKind string

const (
	KindCoefficient EventKind = "coefficient"
	KindWeight      EventKind = "weight"
	KindPerformance EventKind = "performance"
	KindRegime      EventKind = "regime"
)

// Severity 事件严重度
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event 一次漂移事件
type Event struct {
	Kind      EventKind              `json:"kind"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ThrottleState 限流状态。不跨进程持久化：限流是对"当前模型不稳"的
// 临时反应，重启后由新的漂移历史重新判断。
type ThrottleState struct {
	Active      bool      `json:"active"`
	ActiveUntil time.Time `json:"active_until,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Config 漂移检测阈值
type Config struct {
	CoefficientChangeThreshold float64       // 单系数相对变化阈值
	WeightChangeThreshold      float64       // 权重漂移（warning）
	WeightFlipThreshold        float64       // 权重翻转（critical）
	AccuracyWindowSize         int           // 准确率滚动窗口
	AccuracyFloor              float64       // 准确率绝对下限（critical）
	AccuracyDropThreshold      float64       // 相邻窗口准确率跌幅（warning）
	ThrottleAfterDrifts        int           // 60 分钟内 critical 次数达到此值触发限流
	ThrottleDuration           time.Duration // 限流时长
}

// DefaultConfig 默认阈值
func DefaultConfig() Config {
	return Config{
		CoefficientChangeThreshold: 0.5,
		WeightChangeThreshold:      0.15,
		WeightFlipThreshold:        0.3,
		AccuracyWindowSize:         50,
		AccuracyFloor:              0.45,
		AccuracyDropThreshold:      0.15,
		ThrottleAfterDrifts:        3,
		ThrottleDuration:           30 * time.Minute,
	}
}

// Validate 配置校验
func (c Config) Validate() error {
	if c.CoefficientChangeThreshold <= 0 {
		return fmt.Errorf("drift config: CoefficientChangeThreshold must be positive")
	}
	if c.WeightChangeThreshold <= 0 || c.WeightFlipThreshold <= c.WeightChangeThreshold {
		return fmt.Errorf("drift config: need 0 < WeightChangeThreshold < WeightFlipThreshold")
	}
	if c.AccuracyWindowSize <= 0 {
		return fmt.Errorf("drift config: AccuracyWindowSize must be positive")
	}
	if c.ThrottleAfterDrifts <= 0 || c.ThrottleDuration <= 0 {
		return fmt.Errorf("drift config: throttle parameters must be positive")
	}
	return nil
}

// criticalWindow 统计 critical 事件的回看窗口
const criticalWindow = 60 * time.Minute

// eventBufferCap 事件缓冲上限（只留最近这些）
const eventBufferCap = 20

// Detector 模型漂移检测器。
//
// 每个模型学习周期结束后调用一次 RecordUpdate，比较系数/权重与上一轮的
// 差异、维护预测准确率窗口，必要时自动限流。限流到期靠读取时懒惰判断，
// 进程内不挂任何定时器。
type Detector struct {
	mu  sync.Mutex
	cfg Config
	bus *events.Bus // 可为 nil

	prevCoefficients map[string]float64
	prevWeights      map[string]float64
	outcomes         []bool // 预测对/错，最多保留 2 个窗口

	eventBuf      []Event
	criticalTimes []time.Time

	throttleActive bool
	throttleUntil  time.Time
	throttleReason string

	now func() time.Time
}

// New 创建漂移检测器。配置非法直接返回错误（启动即失败）。
func New(cfg Config, bus *events.Bus) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg: cfg,
		bus: bus,
		now: time.Now,
	}, nil
}

// WithClock 覆盖时钟（测试用）
func (d *Detector) WithClock(fn func() time.Time) *Detector {
	if fn != nil {
		d.now = fn
	}
	return d
}

// RecordUpdate 接收一轮模型更新的产物，返回本轮产生的漂移事件。
// prediction/actualOutcome 以 0.5 为界折算成对/错计入准确率窗口。
func (d *Detector) RecordUpdate(weights, coefficients map[string]float64, prediction, actualOutcome float64) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var out []Event

	if ev := d.checkCoefficients(coefficients, now); ev != nil {
		out = append(out, *ev)
	}
	if ev := d.checkWeights(weights, now); ev != nil {
		out = append(out, *ev)
	}
	out = append(out, d.checkPerformance(prediction, actualOutcome, now)...)

	for _, ev := range out {
		d.recordLocked(ev)
	}

	// 自动限流：任何事件记录之后统计近 60 分钟的 critical 次数
	if ev := d.maybeThrottleLocked(now); ev != nil {
		d.recordLocked(*ev)
		out = append(out, *ev)
	}

	return out
}

// checkCoefficients 系数漂移：|Δ|/max(|prev|,0.01) 超阈值计一个不稳定特征。
// 首轮没有基线，不产出任何事件。
func (d *Detector) checkCoefficients(coefficients map[string]float64, now time.Time) *Event {
	prev := d.prevCoefficients
	d.prevCoefficients = copyFloats(coefficients)
	if prev == nil || len(coefficients) == 0 {
		return nil
	}

	var unstable []string
	for name, cur := range coefficients {
		p, ok := prev[name]
		if !ok {
			continue
		}
		denom := math.Max(math.Abs(p), 0.01)
		if math.Abs(cur-p)/denom > d.cfg.CoefficientChangeThreshold {
			unstable = append(unstable, name)
		}
	}
	if len(unstable) == 0 {
		return nil
	}

	severity := SeverityWarning
	if len(unstable) >= 3 {
		severity = SeverityCritical
	}
	return &Event{
		Kind:     KindCoefficient,
		Severity: severity,
		Message:  fmt.Sprintf("%d coefficient(s) unstable", len(unstable)),
		Details: map[string]interface{}{
			"unstable_features": unstable,
		},
		Timestamp: now,
	}
}

// checkWeights 集成权重漂移：取本轮最大摆动判级。
func (d *Detector) checkWeights(weights map[string]float64, now time.Time) *Event {
	prev := d.prevWeights
	d.prevWeights = copyFloats(weights)
	if prev == nil || len(weights) == 0 {
		return nil
	}

	maxSwing := 0.0
	swingName := ""
	for name, cur := range weights {
		p, ok := prev[name]
		if !ok {
			continue
		}
		swing := math.Abs(cur - p)
		if swing > maxSwing {
			maxSwing = swing
			swingName = name
		}
	}

	switch {
	case maxSwing >= d.cfg.WeightFlipThreshold:
		return &Event{
			Kind:     KindWeight,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("ensemble weight flip: %s swung %.3f", swingName, maxSwing),
			Details: map[string]interface{}{
				"weight": swingName,
				"swing":  maxSwing,
			},
			Timestamp: now,
		}
	case maxSwing >= d.cfg.WeightChangeThreshold:
		return &Event{
			Kind:     KindWeight,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("ensemble weight drift: %s swung %.3f", swingName, maxSwing),
			Details: map[string]interface{}{
				"weight": swingName,
				"swing":  maxSwing,
			},
			Timestamp: now,
		}
	}
	return nil
}

// checkPerformance 预测准确率：窗口满后检查绝对下限；有两个完整窗口后
// 检查相邻窗口跌幅。两种检查可同时触发。
func (d *Detector) checkPerformance(prediction, actualOutcome float64, now time.Time) []Event {
	correct := (prediction >= 0.5) == (actualOutcome >= 0.5)
	d.outcomes = append(d.outcomes, correct)

	window := d.cfg.AccuracyWindowSize
	if len(d.outcomes) > 2*window {
		d.outcomes = d.outcomes[len(d.outcomes)-2*window:]
	}
	if len(d.outcomes) < window {
		return nil
	}

	var out []Event
	current := accuracy(d.outcomes[len(d.outcomes)-window:])

	if current < d.cfg.AccuracyFloor {
		out = append(out, Event{
			Kind:     KindPerformance,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("accuracy %.3f below floor %.3f", current, d.cfg.AccuracyFloor),
			Details: map[string]interface{}{
				"accuracy": current,
				"floor":    d.cfg.AccuracyFloor,
			},
			Timestamp: now,
		})
	}

	if len(d.outcomes) >= 2*window {
		previous := accuracy(d.outcomes[len(d.outcomes)-2*window : len(d.outcomes)-window])
		if drop := previous - current; drop >= d.cfg.AccuracyDropThreshold {
			out = append(out, Event{
				Kind:     KindPerformance,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("accuracy dropped %.3f (%.3f -> %.3f)", drop, previous, current),
				Details: map[string]interface{}{
					"previous": previous,
					"current":  current,
					"drop":     drop,
				},
				Timestamp: now,
			})
		}
	}
	return out
}

// maybeThrottleLocked 近 60 分钟 critical 达到阈值则激活限流并产出 regime 事件。
// 已在限流中不重复触发。
func (d *Detector) maybeThrottleLocked(now time.Time) *Event {
	// 剪掉窗口外的 critical 时间戳
	cutoff := now.Add(-criticalWindow)
	kept := d.criticalTimes[:0]
	for _, t := range d.criticalTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.criticalTimes = kept

	if d.throttleActive && now.Before(d.throttleUntil) {
		return nil
	}
	if len(d.criticalTimes) < d.cfg.ThrottleAfterDrifts {
		return nil
	}

	d.throttleActive = true
	d.throttleUntil = now.Add(d.cfg.ThrottleDuration)
	d.throttleReason = fmt.Sprintf("%d critical drift events within %s", len(d.criticalTimes), criticalWindow)
	metrics.ThrottleTrips.Add(1)

	log.Warnf("🛑 漂移限流已激活: until=%s reason=%s", d.throttleUntil.Format(time.RFC3339), d.throttleReason)
	if d.bus != nil {
		d.bus.Publish(events.ThrottleChangedEvent{
			Active:      true,
			Reason:      d.throttleReason,
			ActiveUntil: d.throttleUntil,
			Timestamp:   now,
		})
	}

	return &Event{
		Kind:     KindRegime,
		Severity: SeverityCritical,
		Message:  "auto-throttle activated: " + d.throttleReason,
		Details: map[string]interface{}{
			"active_until": d.throttleUntil,
		},
		Timestamp: now,
	}
}

// recordLocked 事件入缓冲（上限 20）、计数、广播
func (d *Detector) recordLocked(ev Event) {
	d.eventBuf = append(d.eventBuf, ev)
	if len(d.eventBuf) > eventBufferCap {
		d.eventBuf = d.eventBuf[len(d.eventBuf)-eventBufferCap:]
	}
	if ev.Severity == SeverityCritical && ev.Kind != KindRegime {
		d.criticalTimes = append(d.criticalTimes, ev.Timestamp)
	}
	metrics.DriftEvents.Add(1)
	log.Warnf("📉 漂移事件: kind=%s severity=%s %s", ev.Kind, ev.Severity, ev.Message)
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

// Throttle 返回当前限流状态。到期在这里懒惰清除，没有后台定时器。
func (d *Detector) Throttle() ThrottleState {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.throttleActive && !now.Before(d.throttleUntil) {
		log.Infof("漂移限流已到期，自动解除")
		d.throttleActive = false
		d.throttleUntil = time.Time{}
		d.throttleReason = ""
		if d.bus != nil {
			d.bus.Publish(events.ThrottleChangedEvent{Active: false, Timestamp: now})
		}
	}

	return ThrottleState{
		Active:      d.throttleActive,
		ActiveUntil: d.throttleUntil,
		Reason:      d.throttleReason,
	}
}

// Events 返回事件缓冲的拷贝（最近的在最后）
func (d *Detector) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.eventBuf))
	copy(out, d.eventBuf)
	return out
}

// Reset 清空全部滚动历史并解除限流。
// 用于操作员确认"市场状态切换属实"后的主动重置，不会自动调用。
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prevCoefficients = nil
	d.prevWeights = nil
	d.outcomes = nil
	d.eventBuf = nil
	d.criticalTimes = nil
	d.throttleActive = false
	d.throttleUntil = time.Time{}
	d.throttleReason = ""
	log.Infof("漂移检测器已重置")
}

func accuracy(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	correct := 0
	for _, ok := range outcomes {
		if ok {
			correct++
		}
	}
	return float64(correct) / float64(len(outcomes))
}

func copyFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
