package link

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/modem"
	"github.com/lk2023060901/zeus-link/pkg/modem/sim"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

type mockPower struct {
	mock.Mock
}

func (m *mockPower) PowerOn() bool {
	return m.Called().Bool(0)
}

func (m *mockPower) PowerOff() bool {
	return m.Called().Bool(0)
}

type recorder struct {
	events []event.Event
}

func (r *recorder) OnEvent(ev event.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []event.Kind {
	out := make([]event.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	reg   *service.Registry
	clk   clock.Clock
	modem *sim.Modem
	est   *Establisher
	rec   *recorder
}

func newFixture(t *testing.T, mcfg sim.Config, power modem.Power) *fixture {
	t.Helper()
	f := &fixture{
		reg:   service.NewRegistry(),
		clk:   clock.MustNew(clock.DefaultConfig()),
		modem: sim.New(mcfg),
		rec:   &recorder{},
	}
	if power == nil {
		power = f.modem
	}
	est, err := New(f.reg, f.clk, power, f.modem.Channel(), f.modem.Negotiator(), DefaultConfig(), WithListener(f.rec))
	require.NoError(t, err)
	f.est = est
	return f
}

// sweep 推进时钟后执行一次清扫。
func (f *fixture) sweep(advance time.Duration) {
	f.clk.AddOffset(advance)
	f.reg.PollAll()
}

// settle 每次推进一秒直到建立器离开进行中的阶段。
func (f *fixture) settle(t *testing.T) time.Duration {
	t.Helper()
	start := f.clk.Now()
	for i := 0; i < 1000; i++ {
		switch f.est.Stage() {
		case StageIdle, StageConnected, StageFailed:
			return f.clk.Since(start)
		}
		f.sweep(time.Second)
	}
	t.Fatalf("establisher stuck in %s", f.est.Stage())
	return 0
}

func TestConnectRequiresPoll(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	assert.Equal(t, StagePoweringOn, f.est.Stage())
	assert.Equal(t, 0, f.modem.PowerOns)

	f.sweep(0)
	assert.Equal(t, StageNegotiatingLink, f.est.Stage())
	f.sweep(0)
	assert.Equal(t, StageConnected, f.est.Stage())
	assert.NoError(t, f.est.Err())
	assert.Equal(t, "internet", f.modem.LastCredentials.APN)
	assert.True(t, f.modem.LinkUp)
	assert.Equal(t, []event.Kind{event.KindLinkUp}, f.rec.kinds())
}

func TestOpenAlwaysFailsExhaustsAttempts(t *testing.T) {
	f := newFixture(t, sim.Config{OpenFailures: -1}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)

	assert.Equal(t, StageFailed, f.est.Stage())
	assert.True(t, errors.Is(f.est.Err(), ErrModem))
	assert.True(t, errors.Is(f.est.Err(), sim.ErrOpenFailed))
	assert.Equal(t, 3, f.modem.Opens)
	assert.Equal(t, 1, f.modem.PowerOns)
	assert.Equal(t, 1, f.modem.PowerOffs)
	assert.Equal(t, 0, f.modem.Negotiations)
	assert.Equal(t, 8*time.Second, f.est.BackoffTotal())
	assert.Equal(t, []event.Kind{event.KindLinkFailed}, f.rec.kinds())
}

func TestOpenRetryWaitsForDeadline(t *testing.T) {
	f := newFixture(t, sim.Config{OpenFailures: 1}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.sweep(0)
	assert.Equal(t, StageOpeningLink, f.est.Stage())
	assert.Equal(t, 1, f.modem.Opens)
	assert.Equal(t, f.clk.Now().Add(4*time.Second), f.est.RetryAt())

	f.sweep(0)
	f.sweep(3 * time.Second)
	assert.Equal(t, 1, f.modem.Opens)
	assert.Equal(t, StageOpeningLink, f.est.Stage())

	f.sweep(time.Second)
	assert.Equal(t, 2, f.modem.Opens)
	assert.Equal(t, StageNegotiatingLink, f.est.Stage())

	f.sweep(0)
	assert.Equal(t, StageConnected, f.est.Stage())
	assert.Equal(t, 1, f.modem.Negotiations)
	assert.Equal(t, 4*time.Second, f.est.BackoffTotal())
	assert.Equal(t, int64(4000), f.est.Snapshot().BackoffMS)
}

func TestPowerOnFailure(t *testing.T) {
	power := &mockPower{}
	power.On("PowerOn").Return(false).Once()
	f := newFixture(t, sim.Config{}, power)

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.sweep(0)

	assert.Equal(t, StageFailed, f.est.Stage())
	assert.True(t, errors.Is(f.est.Err(), ErrModem))
	assert.True(t, errors.Is(f.est.Err(), modem.ErrPowerFailure))
	assert.Equal(t, 0, f.modem.Opens)
	power.AssertExpectations(t)
	power.AssertNotCalled(t, "PowerOff")
}

func TestPowerOffFailureIsIgnored(t *testing.T) {
	power := &mockPower{}
	power.On("PowerOn").Return(true).Once()
	power.On("PowerOff").Return(false).Once()
	f := newFixture(t, sim.Config{}, power)
	f.modem.Powered = true

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)
	require.Equal(t, StageConnected, f.est.Stage())

	require.NoError(t, f.est.Disconnect())
	f.sweep(0)

	assert.Equal(t, StageIdle, f.est.Stage())
	assert.NoError(t, f.est.Err())
	power.AssertExpectations(t)
}

func TestNegotiationExhausted(t *testing.T) {
	f := newFixture(t, sim.Config{NegotiateFailures: -1}, nil)

	require.NoError(t, f.est.Connect("internet", "user", "secret"))
	f.settle(t)

	assert.Equal(t, StageFailed, f.est.Stage())
	var negErr *NegotiationError
	require.True(t, errors.As(f.est.Err(), &negErr))
	assert.Equal(t, 3, negErr.Attempts)
	assert.True(t, errors.Is(f.est.Err(), sim.ErrNegotiationRejected))
	assert.False(t, errors.Is(f.est.Err(), ErrModem))
	assert.Equal(t, 1, f.modem.Opens)
	assert.Equal(t, 3, f.modem.Negotiations)
	assert.Equal(t, 1, f.modem.Closes)
	assert.Equal(t, 1, f.modem.PowerOffs)
	assert.False(t, f.modem.Powered)
}

func TestAttemptLatencySpansSweeps(t *testing.T) {
	f := newFixture(t, sim.Config{Latency: 2}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.sweep(0)
	assert.Equal(t, StageOpeningLink, f.est.Stage())
	f.sweep(0)
	f.sweep(0)
	assert.Equal(t, StageNegotiatingLink, f.est.Stage())
	assert.Equal(t, 1, f.modem.Opens)

	f.settle(t)
	assert.Equal(t, StageConnected, f.est.Stage())
	assert.Equal(t, time.Duration(0), f.est.BackoffTotal())
}

func TestConnectWhileBusy(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	assert.True(t, errors.Is(f.est.Connect("internet", "", ""), ErrBusy))

	f.settle(t)
	assert.True(t, errors.Is(f.est.Connect("internet", "", ""), ErrBusy))

	require.NoError(t, f.est.Disconnect())
	assert.True(t, errors.Is(f.est.Disconnect(), ErrNotConnected))
	assert.True(t, errors.Is(f.est.Connect("internet", "", ""), ErrBusy))
}

func TestDisconnectRequiresConnected(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)

	assert.True(t, errors.Is(f.est.Disconnect(), ErrNotConnected))
}

func TestReconnectAfterFailure(t *testing.T) {
	f := newFixture(t, sim.Config{OpenFailures: 3}, nil)

	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)
	require.Equal(t, StageFailed, f.est.Stage())
	firstRun := f.est.Snapshot().RunID

	require.NoError(t, f.est.Reconnect())
	assert.NoError(t, f.est.Err())
	f.settle(t)

	assert.Equal(t, StageConnected, f.est.Stage())
	assert.Equal(t, 4, f.modem.Opens)
	assert.NotEqual(t, firstRun, f.est.Snapshot().RunID)
	assert.Equal(t, []event.Kind{event.KindLinkFailed, event.KindLinkUp}, f.rec.kinds())
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)
	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)

	require.NoError(t, f.est.Disconnect())
	assert.Equal(t, StageDisconnecting, f.est.Stage())
	f.sweep(0)

	assert.Equal(t, StageIdle, f.est.Stage())
	assert.False(t, f.modem.Powered)
	assert.False(t, f.modem.LinkUp)
	assert.Equal(t, 1, f.modem.Teardowns)
	assert.Equal(t, 1, f.modem.Closes)
	assert.Equal(t, []event.Kind{event.KindLinkUp, event.KindLinkDown}, f.rec.kinds())
	assert.NoError(t, f.rec.events[1].Err)
}

func TestDisconnectTeardownFailure(t *testing.T) {
	f := newFixture(t, sim.Config{TeardownFails: true}, nil)
	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)

	require.NoError(t, f.est.Disconnect())
	f.sweep(0)

	assert.Equal(t, StageConnected, f.est.Stage())
	assert.True(t, errors.Is(f.est.Err(), sim.ErrTeardownFailed))
	assert.True(t, f.modem.Powered)
	require.Len(t, f.rec.events, 2)
	assert.Equal(t, event.KindLinkDown, f.rec.events[1].Kind)
	assert.Error(t, f.rec.events[1].Err)
}

func TestDestroyReleasesModem(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)
	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)

	f.est.Destroy()

	assert.True(t, f.est.Removed())
	assert.Equal(t, 0, f.reg.Len())
	assert.False(t, f.modem.Powered)
	assert.Equal(t, 1, f.modem.Closes)
	assert.True(t, errors.Is(f.est.Connect("internet", "", ""), ErrClosed))
}

func TestEstablisherIsNotReaped(t *testing.T) {
	f := newFixture(t, sim.Config{}, nil)

	f.est.Close()
	f.sweep(0)

	assert.False(t, f.est.Removed())
	assert.Equal(t, 1, f.reg.Len())
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, sim.Config{OpenFailures: -1}, nil)
	require.NoError(t, f.est.Connect("internet", "", ""))
	f.settle(t)

	st := f.est.Snapshot()
	assert.Equal(t, "FAILED", st.Stage)
	assert.Equal(t, "internet", st.APN)
	assert.Equal(t, 3, st.Attempt)
	assert.Equal(t, 3, st.MaxAttempts)
	assert.NotEmpty(t, st.RunID)
	assert.Contains(t, st.Error, "open command channel")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.Backoff.Strategy = scheduler.BackoffExponential
	cfg.Backoff.Multiplier = 0.5
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.Backoff.Strategy = "linear"
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	_, err := New(service.NewRegistry(), clock.MustNew(clock.DefaultConfig()), nil, nil, nil, Config{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "NEGOTIATING_LINK", StageNegotiatingLink.String())
	assert.Equal(t, "UNKNOWN", Stage(42).String())
}
