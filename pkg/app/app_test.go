package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/zeus-link/pkg/httpd"
	"github.com/lk2023060901/zeus-link/pkg/link"
	"github.com/lk2023060901/zeus-link/pkg/modem/sim"
	"github.com/lk2023060901/zeus-link/pkg/module"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Millisecond
	cfg.LogSyncInterval = 0
	cfg.Link.Credentials.APN = "internet"
	cfg.Link.Backoff.Strategy = scheduler.BackoffNone
	cfg.HTTP.Addr = ""
	return cfg
}

func newTestApp(t *testing.T, cfg Config, m *sim.Modem) (*BaseApplication, *link.Module) {
	t.Helper()
	a := NewBaseApplication("linkd-test", WithRegistry(service.NewRegistry()), WithConfig(cfg))
	linkMod := link.NewModule(cfg.Link, m, m.Channel(), m.Negotiator(), nil)
	require.NoError(t, a.RegisterModule(linkMod))
	return a, linkMod
}

func TestApplicationSweepsLinkUp(t *testing.T) {
	m := sim.New(sim.Config{OpenFailures: 1})
	a, linkMod := newTestApp(t, testConfig(), m)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	est := linkMod.Establisher()
	require.NotNil(t, est)
	assert.Equal(t, link.StagePoweringOn, est.Stage())

	for i := 0; i < 10 && est.Stage() != link.StageConnected; i++ {
		a.Sweep()
	}
	assert.Equal(t, link.StageConnected, est.Stage())
	assert.Equal(t, 2, m.Opens)

	require.NoError(t, a.Stop(ctx))
	assert.False(t, m.Powered)
	assert.Equal(t, 0, a.Registry().Len())
}

func TestApplicationRunUntilShutdown(t *testing.T) {
	m := sim.New(sim.Config{})
	a, linkMod := newTestApp(t, testConfig(), m)

	done := make(chan error, 1)
	go func() {
		done <- a.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return a.Registry() != nil && a.Registry().Sweeps() > 5
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, a.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	assert.True(t, linkMod.Establisher().Removed())
	assert.False(t, m.Powered)
}

func TestApplicationRunStopsOnContextCancel(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), sim.New(sim.Config{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, a.Registry().Len())
}

func TestRegisterAfterInitIsRejected(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), sim.New(sim.Config{}))
	require.NoError(t, a.Init(context.Background()))

	err := a.RegisterModule(httpd.NewModule(httpd.Config{}, nil))
	assert.Equal(t, errRegisterLocked, err)
	assert.Equal(t, errConfigLocked, a.SetConfigPath("x.yaml"))
	assert.Equal(t, errNilModule, NewBaseApplication("x").RegisterModule(nil))
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 0
	a := NewBaseApplication("bad", WithRegistry(service.NewRegistry()), WithConfig(cfg))

	err := a.Init(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(a.Stop(context.Background()), errNotInitialized))
}

// brokenModule 在 Init 时失败，并记录收到的环境。
type brokenModule struct {
	env *module.Env
}

func (m *brokenModule) ID() string { return "broken" }
func (m *brokenModule) Requires() []string { return []string{link.ModuleID} }
func (m *brokenModule) Start(context.Context) error { return nil }
func (m *brokenModule) Stop(context.Context) error { return nil }

func (m *brokenModule) Init(_ context.Context, env *module.Env) error {
	m.env = env
	return errors.New("no modem on bus")
}

func TestModuleInitFailureReleasesResources(t *testing.T) {
	a, linkMod := newTestApp(t, testConfig(), sim.New(sim.Config{}))
	broken := &brokenModule{}
	require.NoError(t, a.RegisterModule(broken))

	err := a.Init(context.Background())
	assert.ErrorContains(t, err, "no modem on bus")

	require.NotNil(t, broken.env)
	assert.True(t, broken.env.Pool.Released())
	assert.Equal(t, 0, broken.env.Registry.Len())
	assert.True(t, linkMod.Establisher().Removed())
	assert.True(t, errors.Is(a.Stop(context.Background()), errNotInitialized))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sweep_interval: 5ms
link:
  apn: iot.example
  user: device
  password: secret
  max_attempts: 5
  backoff:
    strategy: exponential
    initial: 1s
    max: 8s
    multiplier: 2
  auto_connect: false
http:
  addr: 127.0.0.1:0
  format: json
housekeeping:
  jobs:
    - name: relink
      spec: "@every 30s"
pool:
  size: 8
`), 0o600))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, time.Second, cfg.LogSyncInterval)
	assert.Equal(t, "iot.example", cfg.Link.Credentials.APN)
	assert.Equal(t, "device", cfg.Link.Credentials.User)
	assert.Equal(t, 5, cfg.Link.MaxAttempts)
	assert.Equal(t, scheduler.BackoffExponential, cfg.Link.Backoff.Strategy)
	assert.Equal(t, 8*time.Second, cfg.Link.Backoff.Max)
	assert.False(t, cfg.Link.AutoConnect)
	assert.Equal(t, httpd.FormatJSON, cfg.HTTP.Format)
	assert.Equal(t, "UTC", cfg.Clock.Timezone)
	require.Len(t, cfg.Housekeeping.Jobs, 1)
	assert.Equal(t, "relink", cfg.Housekeeping.Jobs[0].Name)
	assert.Equal(t, 8, cfg.Pool.Size)
}

func TestLoadConfigFromFileErrors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("link:\n  max_attempts: 0\n"), 0o600))
	_, err = LoadConfigFromFile(path)
	assert.True(t, errors.Is(err, link.ErrInvalidConfig))
}
