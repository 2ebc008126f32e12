// Command linkd 在模拟模组上运行链路建立器、状态页与维护任务。
//
// 用法：
//
//	linkd [-config linkd.yaml] [-http 127.0.0.1:8080]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lk2023060901/zeus-link/pkg/app"
	"github.com/lk2023060901/zeus-link/pkg/dns"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/httpd"
	"github.com/lk2023060901/zeus-link/pkg/link"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/modem/sim"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
)

const appName = "linkd"

// fileConfig 在应用配置之外增加演示用的配置段。
type fileConfig struct {
	app.Config `yaml:",inline"`

	// Modem 模拟模组行为
	Modem sim.Config `yaml:"modem"`

	// Probe 链路建立后定时解析的主机
	Probe ProbeConfig `yaml:"probe"`
}

// ProbeConfig 连通性探测配置
type ProbeConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

func main() {
	configPath := flag.String("config", "", "configuration file path")
	httpAddr := flag.String("http", "", "status page listen address, overrides the config file")
	flag.Parse()

	if err := run(*configPath, *httpAddr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run(configPath, httpAddr string) error {
	cfg := fileConfig{Config: app.DefaultConfig()}
	if configPath != "" {
		if err := app.DecodeFile(configPath, &cfg); err != nil {
			return err
		}
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := sim.New(cfg.Modem)
	a := app.NewBaseApplication(appName, app.WithConfig(cfg.Config))

	linkMod := link.NewModule(cfg.Link, m, m.Channel(), m.Negotiator(), event.ListenerFunc(onLinkEvent))
	prober := &prober{app: a, cfg: cfg.Probe, dnsCfg: cfg.DNS, link: linkMod}
	if err := a.RegisterModule(linkMod); err != nil {
		return err
	}
	if err := a.RegisterModule(httpd.NewModule(cfg.HTTP, func() httpd.LinkSource {
		return linkMod.Establisher()
	})); err != nil {
		return err
	}
	jobs := map[string]scheduler.JobFunc{
		"relink": linkMod.RelinkJob,
		"probe":  prober.run,
	}
	if err := a.RegisterModule(scheduler.NewModule(&cfg.Housekeeping, jobs, link.ModuleID)); err != nil {
		return err
	}

	return a.Run(context.Background())
}

func onLinkEvent(ev event.Event) {
	log := logger.Get(appName)
	switch ev.Kind {
	case event.KindLinkUp:
		log.Info("link up", logger.Fields("status", ev.Value)...)
	case event.KindLinkFailed:
		log.Error("link failed", logger.Fields("error", ev.Err)...)
	case event.KindLinkDown:
		if ev.Err != nil {
			log.Warn("link teardown failed", logger.Fields("error", ev.Err)...)
			return
		}
		log.Info("link down")
	}
}

// prober 在链路建立后定时解析探测主机。
type prober struct {
	app    *app.BaseApplication
	cfg    ProbeConfig
	dnsCfg dns.Config
	link   *link.Module
	client *dns.Client
}

func (p *prober) run(_ time.Time) error {
	if p.cfg.Host == "" {
		return nil
	}
	est := p.link.Establisher()
	if est == nil || est.Stage() != link.StageConnected {
		return nil
	}
	if p.client == nil {
		env := p.app.Env()
		p.client = dns.NewClient(env.Registry, nil, p.dnsCfg, dns.WithLogger(env.Logger))
	}
	host := &dns.Host{Name: p.cfg.Host, Port: p.cfg.Port}
	p.client.ResolveHost(host, event.ListenerFunc(func(ev event.Event) {
		log := logger.Get(appName)
		if ev.Err != nil {
			log.Warn("probe resolve failed", logger.Fields("host", host.Name, "error", ev.Err)...)
			return
		}
		log.Info("probe resolved", logger.Fields("host", host.Name, "addr", host.String())...)
	}))
	return nil
}
