package link

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/modem"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

// Stage 表示链路建立所处的阶段。
type Stage uint8

const (
	// StageIdle 未建立链路
	StageIdle Stage = iota
	// StagePoweringOn 正在给模组上电
	StagePoweringOn
	// StageOpeningLink 正在打开命令通道
	StageOpeningLink
	// StageNegotiatingLink 正在协商链路层会话
	StageNegotiatingLink
	// StageConnected 链路已建立
	StageConnected
	// StageFailed 链路建立失败，可以再次 Connect
	StageFailed
	// StageDisconnecting 正在拆除链路
	StageDisconnecting
)

// String 返回阶段名称。
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StagePoweringOn:
		return "POWERING_ON"
	case StageOpeningLink:
		return "OPENING_LINK"
	case StageNegotiatingLink:
		return "NEGOTIATING_LINK"
	case StageConnected:
		return "CONNECTED"
	case StageFailed:
		return "FAILED"
	case StageDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

type outcome uint8

const (
	outcomePending outcome = iota
	outcomeSucceeded
	outcomeExhausted
)

// Establisher 分阶段、有界重试的蜂窝链路建立器。
//
// Connect 与 Disconnect 只记录请求，所有进展都发生在 Poll 中。两次尝试之间的退避
// 通过截止时间实现：只有在某次 Poll 观察到截止时间已到时才开始下一次尝试。
type Establisher struct {
	service.Base

	power      modem.Power
	channel    modem.CommandChannel
	negotiator modem.Negotiator
	clock      clock.Clock
	logger     logger.Logger
	events     event.Queue

	cfg   Config
	cred  modem.Credentials
	stage Stage
	retry *scheduler.Retrier

	pending     modem.Attempt
	powered     bool
	channelOpen bool
	waited      time.Duration
	err         error
	runID       string
	startedAt   time.Time
	changedAt   time.Time
}

// Option 建立器选项
type Option func(*Establisher)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(e *Establisher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithListener 绑定结果监听者
func WithListener(l event.Listener) Option {
	return func(e *Establisher) {
		e.events.Bind(l)
	}
}

// New 创建链路建立器并以外部持有的方式注册到 reg。
func New(
	reg *service.Registry,
	clk clock.Clock,
	power modem.Power,
	channel modem.CommandChannel,
	negotiator modem.Negotiator,
	cfg Config,
	opts ...Option,
) (*Establisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Establisher{
		power:      power,
		channel:    channel,
		negotiator: negotiator,
		clock:      clk,
		logger:     logger.Nop(),
		cfg:        cfg,
		cred:       cfg.Credentials,
		retry:      scheduler.NewRetrier(cfg.MaxAttempts, scheduler.NewBackoff(cfg.Backoff)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.changedAt = clk.Now()
	e.Attach(reg, e, service.External)
	return e, nil
}

// Bind 设置结果监听者，nil 表示解除绑定。
func (e *Establisher) Bind(l event.Listener) {
	e.events.Bind(l)
}

// Connect 以给定接入参数开始建立链路，结果通过监听者与 Stage/Err 获得。
func (e *Establisher) Connect(apn, user, password string) error {
	return e.ConnectWith(modem.Credentials{APN: apn, User: user, Password: password})
}

// ConnectWith 以给定接入参数开始建立链路。
func (e *Establisher) ConnectWith(cred modem.Credentials) error {
	if e.Closed() {
		return ErrClosed
	}
	if e.stage != StageIdle && e.stage != StageFailed {
		return errors.Wrapf(ErrBusy, "stage %s", e.stage)
	}
	e.cred = cred
	e.err = nil
	e.waited = 0
	e.pending = nil
	e.retry.Reset()
	e.runID = uuid.NewString()
	e.startedAt = e.clock.Now()
	e.setStage(StagePoweringOn)
	e.logger.Info("link connect requested", logger.Fields(
		"run_id", e.runID,
		"apn", cred.APN,
		"max_attempts", e.cfg.MaxAttempts,
	)...)
	return nil
}

// Reconnect 使用上一次的接入参数重新建立链路。
func (e *Establisher) Reconnect() error {
	return e.ConnectWith(e.cred)
}

// Disconnect 开始拆除已建立的链路。
func (e *Establisher) Disconnect() error {
	if e.Closed() {
		return ErrClosed
	}
	if e.stage != StageConnected {
		return errors.Wrapf(ErrNotConnected, "stage %s", e.stage)
	}
	e.err = nil
	e.pending = nil
	e.setStage(StageDisconnecting)
	e.logger.Info("link disconnect requested", logger.Fields("run_id", e.runID)...)
	return nil
}

// Poll 推进当前阶段并投递积压的事件。
func (e *Establisher) Poll() {
	if e.Closed() {
		return
	}
	switch e.stage {
	case StagePoweringOn:
		e.pollPowerOn()
	case StageOpeningLink:
		e.pollOpen()
	case StageNegotiatingLink:
		e.pollNegotiate()
	case StageDisconnecting:
		e.pollDisconnect()
	}
	e.events.Flush()
}

func (e *Establisher) pollPowerOn() {
	if !e.power.PowerOn() {
		e.fail(modemError(modem.ErrPowerFailure, "link: power on"))
		return
	}
	e.powered = true
	e.logger.Debug("modem powered on", logger.Fields("run_id", e.runID)...)
	e.enterRetryStage(StageOpeningLink)
	e.pollOpen()
}

func (e *Establisher) pollOpen() {
	res, err := e.pollAttempt(e.channel.Open)
	switch res {
	case outcomeSucceeded:
		e.channelOpen = true
		e.enterRetryStage(StageNegotiatingLink)
	case outcomeExhausted:
		e.powerOff()
		e.fail(modemError(err, "link: open command channel"))
	}
}

func (e *Establisher) pollNegotiate() {
	res, err := e.pollAttempt(func() modem.Attempt {
		return e.negotiator.Negotiate(e.cred)
	})
	switch res {
	case outcomeSucceeded:
		e.waited += e.retry.Waited()
		e.setStage(StageConnected)
		e.logger.Info("link connected", logger.Fields(
			"run_id", e.runID,
			"elapsed", e.clock.Since(e.startedAt),
			"backoff", e.waited,
		)...)
		e.events.Push(event.Event{Kind: event.KindLinkUp, Value: e.Snapshot()})
	case outcomeExhausted:
		e.closeChannel()
		e.powerOff()
		e.fail(&NegotiationError{Attempts: e.retry.Attempt(), Reason: err})
	}
}

func (e *Establisher) pollDisconnect() {
	if e.pending == nil {
		e.pending = e.negotiator.Teardown()
	}
	done, err := e.pending.Poll()
	if !done {
		return
	}
	e.pending = nil
	if err != nil {
		e.err = errors.Wrap(err, "link: teardown")
		e.setStage(StageConnected)
		e.logger.Warn("link teardown failed", logger.Fields("run_id", e.runID, "error", err)...)
		e.events.Push(event.Event{Kind: event.KindLinkDown, Err: e.err})
		return
	}
	e.closeChannel()
	e.powerOff()
	e.setStage(StageIdle)
	e.logger.Info("link disconnected", logger.Fields("run_id", e.runID)...)
	e.events.Push(event.Event{Kind: event.KindLinkDown})
}

// pollAttempt 在截止时间到达后开始新尝试，并推进进行中的尝试。
func (e *Establisher) pollAttempt(start func() modem.Attempt) (outcome, error) {
	now := e.clock.Now()
	if e.pending == nil {
		if !e.retry.Ready(now) {
			return outcomePending, nil
		}
		n := e.retry.Begin()
		e.logger.Debug("stage attempt started", logger.Fields(
			"run_id", e.runID,
			"stage", e.stage.String(),
			"attempt", n,
		)...)
		e.pending = start()
	}

	done, err := e.pending.Poll()
	if !done {
		return outcomePending, nil
	}
	e.pending = nil
	if err == nil {
		return outcomeSucceeded, nil
	}
	if e.retry.Fail(now) {
		e.logger.Warn("stage attempt failed, retrying", logger.Fields(
			"run_id", e.runID,
			"stage", e.stage.String(),
			"attempt", e.retry.Attempt(),
			"retry_at", e.retry.Deadline(),
			"error", err,
		)...)
		return outcomePending, nil
	}
	return outcomeExhausted, err
}

func (e *Establisher) enterRetryStage(stage Stage) {
	e.waited += e.retry.Waited()
	e.retry.Reset()
	e.pending = nil
	e.setStage(stage)
}

func (e *Establisher) fail(err error) {
	e.waited += e.retry.Waited()
	e.err = err
	e.pending = nil
	e.setStage(StageFailed)
	e.logger.Error("link connect failed", logger.Fields(
		"run_id", e.runID,
		"attempts", e.retry.Attempt(),
		"error", err,
	)...)
	e.events.Push(event.Event{Kind: event.KindLinkFailed, Err: err})
}

func (e *Establisher) closeChannel() {
	if !e.channelOpen {
		return
	}
	e.channelOpen = false
	if err := e.channel.Close(); err != nil {
		e.logger.Warn("command channel close failed", logger.Fields("error", err)...)
	}
}

// powerOff 断电结果只记录，不影响流程。
func (e *Establisher) powerOff() {
	if !e.powered {
		return
	}
	e.powered = false
	if !e.power.PowerOff() {
		e.logger.Warn("modem power off reported failure", logger.Fields("run_id", e.runID)...)
	}
}

func (e *Establisher) setStage(s Stage) {
	if e.stage == s {
		return
	}
	e.logger.Debug("link stage changed", logger.Fields(
		"run_id", e.runID,
		"from", e.stage.String(),
		"to", s.String(),
	)...)
	e.stage = s
	e.changedAt = e.clock.Now()
}

// Destroy 关闭命令通道、断电并注销自身。
func (e *Establisher) Destroy() {
	e.events.Discard()
	e.pending = nil
	e.closeChannel()
	e.powerOff()
	if e.stage != StageFailed {
		e.stage = StageIdle
	}
	e.Base.Destroy()
}

// Stage 返回当前阶段。
func (e *Establisher) Stage() Stage {
	return e.stage
}

// Err 返回最近一次建立或拆除失败的错误。
func (e *Establisher) Err() error {
	return e.err
}

// Attempts 返回当前（或最后一个）重试阶段已进行的尝试次数。
func (e *Establisher) Attempts() int {
	return e.retry.Attempt()
}

// BackoffTotal 返回本次建立过程中累计的退避时长。
func (e *Establisher) BackoffTotal() time.Duration {
	if e.stage == StageOpeningLink || e.stage == StageNegotiatingLink {
		return e.waited + e.retry.Waited()
	}
	return e.waited
}

// RetryAt 返回下一次尝试的截止时间，没有等待中的重试时为零值。
func (e *Establisher) RetryAt() time.Time {
	if e.pending != nil {
		return time.Time{}
	}
	return e.retry.Deadline()
}

// Status 链路状态快照
type Status struct {
	Stage       string `json:"stage" cbor:"stage"`
	RunID       string `json:"run_id,omitempty" cbor:"run_id,omitempty"`
	APN         string `json:"apn,omitempty" cbor:"apn,omitempty"`
	Attempt     int    `json:"attempt" cbor:"attempt"`
	MaxAttempts int    `json:"max_attempts" cbor:"max_attempts"`
	BackoffMS   int64  `json:"backoff_ms" cbor:"backoff_ms"`
	SinceMS     int64  `json:"since_ms" cbor:"since_ms"`
	Error       string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Snapshot 返回当前状态快照。
func (e *Establisher) Snapshot() Status {
	st := Status{
		Stage:       e.stage.String(),
		RunID:       e.runID,
		APN:         e.cred.APN,
		Attempt:     e.retry.Attempt(),
		MaxAttempts: e.cfg.MaxAttempts,
		BackoffMS:   e.BackoffTotal().Milliseconds(),
		SinceMS:     e.clock.Since(e.changedAt).Milliseconds(),
	}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}
