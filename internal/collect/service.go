package collect

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/config"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/probe"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/telemetry"
)

const (
	serviceRCCRemote = "rccremote"
	serviceNginx     = "nginx"
)

type Prober interface {
	Probe(ctx context.Context, host string, port int) probe.Result
}

// ToolInfoProvider is the package-management subsystem as seen by the
// dashboard. rcc.Client is the CLI-backed implementation.
type ToolInfoProvider interface {
	ToolInfo(ctx context.Context) model.ToolInfo
	Catalogs(ctx context.Context) (model.CatalogList, error)
}

type Counter interface {
	CountRobots() (int, error)
	CountZips() (int, error)
}

type ProbeObserver interface {
	ObserveProbe(service string, reachable bool)
}

type nopObserver struct{}

func (nopObserver) ObserveProbe(string, bool) {}

var errNoToolInfo = errors.New("rcc is not configured")

// missingTool stands in for a nil ToolInfoProvider: rcc reads as unavailable.
type missingTool struct{}

func (missingTool) ToolInfo(context.Context) model.ToolInfo {
	return model.ToolInfo{Version: "unknown"}
}

func (missingTool) Catalogs(context.Context) (model.CatalogList, error) {
	return model.CatalogList{}, errNoToolInfo
}

// missingCounter stands in for a nil Counter: every directory counts zero.
type missingCounter struct{}

func (missingCounter) CountRobots() (int, error) { return 0, nil }
func (missingCounter) CountZips() (int, error)   { return 0, nil }

type Service struct {
	cfg     config.Config
	prober  Prober
	tool    ToolInfoProvider
	counter Counter
	logger  *zap.Logger
	metrics ProbeObserver
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService wires the aggregator. Any nil dependency is replaced by a
// stand-in that reports the degraded value, so Status keeps its never-fail
// contract.
func NewService(cfg config.Config, prober Prober, tool ToolInfoProvider, counter Counter, logger *zap.Logger, metrics ProbeObserver) *Service {
	if tool == nil {
		tool = missingTool{}
	}
	if counter == nil {
		counter = missingCounter{}
	}
	if prober == nil {
		prober = probe.NewTCPProber(probe.DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopObserver{}
	}
	return &Service{
		cfg:     cfg,
		prober:  prober,
		tool:    tool,
		counter: counter,
		logger:  logger.Named("collect"),
		metrics: metrics,
		tracer:  otel.Tracer("github.com/NeptuneCipher42/rcc-dashboard/internal/collect"),
		now:     time.Now,
	}
}

func (s *Service) Health() model.Health {
	return model.Health{
		Status:    "healthy",
		Timestamp: s.timestamp(),
		Service:   telemetry.ServiceName,
	}
}

// Status builds a fresh snapshot. It never fails: every sub-check that does
// not succeed shows up as false, zero or "unknown". The probes and rcc calls
// run concurrently, are bounded by their own timeouts and are not cut short
// when the caller goes away.
func (s *Service) Status(ctx context.Context) model.StatusSnapshot {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "collect.status")
	defer span.End()

	var (
		wg      sync.WaitGroup
		pkgUp   bool
		proxyUp bool
		tool    model.ToolInfo
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		pkgUp = s.reachable(ctx, serviceRCCRemote, s.cfg.RCCRemoteHost, s.cfg.RCCRemotePort)
	}()
	go func() {
		defer wg.Done()
		proxyUp = s.reachable(ctx, serviceNginx, s.cfg.NginxHost, s.cfg.NginxPort)
	}()
	go func() {
		defer wg.Done()
		tool = s.tool.ToolInfo(ctx)
	}()

	robots := s.count("robots", s.counter.CountRobots)
	zips := s.count("hololib_zips", s.counter.CountZips)
	wg.Wait()

	span.SetAttributes(
		attribute.Bool("rccremote.running", pkgUp),
		attribute.Bool("nginx.running", proxyUp),
		attribute.Bool("rcc.available", tool.Available),
	)

	return model.StatusSnapshot{
		Services: model.Services{
			RCCRemote: model.PackageServerState{
				Running: pkgUp,
				Host:    s.cfg.RCCRemoteHost,
				Port:    strconv.Itoa(s.cfg.RCCRemotePort),
			},
			Nginx: model.ProxyState{
				Running: proxyUp,
				Host:    s.cfg.NginxHost,
			},
		},
		RCC: model.RCCStatus{
			Version:               tool.Version,
			Available:             tool.Available,
			CatalogTotalBytes:     tool.Details.CatalogTotalBytes,
			NewestCatalogAgeDays:  tool.Details.NewestCatalogAgeDays,
			MostUsedSpace:         tool.Details.MostUsedSpace,
			SettingsProfile:       tool.Details.Settings.Profile,
			SettingsVersion:       tool.Details.Settings.Version,
			SSLVerify:             tool.Details.Settings.SSLVerify,
			DiagnosticsHostsCount: tool.Details.Settings.DiagnosticsHostsCount,
			RCCIndexURL:           tool.Details.Settings.IndexURL,
		},
		Statistics: model.Statistics{
			Robots:           robots,
			Catalogs:         tool.CatalogCount,
			HololibZips:      zips,
			HolotreeSpaces:   tool.Details.SpaceCount,
			ActiveBlueprints: tool.Details.ActiveBlueprints,
		},
		Paths: model.Paths{
			Robots:     s.cfg.RobotsPath,
			HololibZip: s.cfg.HololibZipPath,
		},
		Timestamp: s.timestamp(),
	}
}

// Catalogs is the strict counterpart of Status: rcc failures are returned.
func (s *Service) Catalogs(ctx context.Context) (model.CatalogList, error) {
	return s.tool.Catalogs(ctx)
}

func (s *Service) reachable(ctx context.Context, service, host string, port int) bool {
	res := s.prober.Probe(ctx, host, port)
	s.metrics.ObserveProbe(service, res.Reachable)
	if !res.Reachable {
		s.logger.Debug("service unreachable",
			zap.String("service", service),
			zap.String("host", host),
			zap.Int("port", port),
			zap.Error(res.Err),
		)
	}
	return res.Reachable
}

func (s *Service) count(what string, fn func() (int, error)) int {
	n, err := fn()
	if err != nil {
		s.logger.Warn("count failed", zap.String("what", what), zap.Error(err))
		return 0
	}
	return n
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
