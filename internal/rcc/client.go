package rcc

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/config"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
)

const (
	VersionTimeout  = 5 * time.Second
	CatalogsTimeout = 10 * time.Second
	ImportTimeout   = 2 * time.Minute
	RebuildTimeout  = 5 * time.Minute
	DetailsTimeout  = 10 * time.Second

	UnknownVersion = "unknown"
)

// Observer receives one call per rcc invocation.
type Observer interface {
	ObserveCommand(command, outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(string, string, time.Duration) {}

// CommandError is returned by operations that surface rcc failures to the
// caller instead of degrading.
type CommandError struct {
	Op     string
	Result Result
}

func (e *CommandError) Error() string {
	switch {
	case e.Result.TimedOut:
		return fmt.Sprintf("rcc %s timed out", e.Op)
	case e.Result.Err != nil && e.Result.ExitCode != 0:
		return fmt.Sprintf("rcc %s failed (exit %d): %v", e.Op, e.Result.ExitCode, e.Result.Err)
	default:
		return fmt.Sprintf("rcc %s failed (exit %d)", e.Op, e.Result.ExitCode)
	}
}

// Details is the failure output shown to API clients.
func (e *CommandError) Details() string {
	return e.Result.Output()
}

// Client talks to the rcc CLI, either on this host or inside the rccremote
// container through `docker exec`.
type Client struct {
	cfg     config.Config
	runner  Runner
	logger  *zap.Logger
	metrics Observer
	tracer  trace.Tracer
}

func NewClient(cfg config.Config, runner Runner, logger *zap.Logger, metrics Observer) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopObserver{}
	}
	return &Client{
		cfg:     cfg,
		runner:  runner,
		logger:  logger.Named("rcc"),
		metrics: metrics,
		tracer:  otel.Tracer("github.com/NeptuneCipher42/rcc-dashboard/internal/rcc"),
	}
}

// ToolInfo queries version, catalogs, holotree spaces and settings
// concurrently, each under its own timeout. It never fails: an rcc that
// cannot be run reports "unknown", unavailable, zero catalogs and empty
// details. CatalogCount always comes from the text listing so it matches
// what Catalogs returns.
func (c *Client) ToolInfo(ctx context.Context) model.ToolInfo {
	var version, catalogs, catalogsJSON, spacesJSON, settingsJSON Result
	queries := []struct {
		dst     *Result
		label   string
		timeout time.Duration
		args    []string
	}{
		{&version, "version", VersionTimeout, []string{"--version"}},
		{&catalogs, "catalogs", CatalogsTimeout, []string{"holotree", "catalogs"}},
		{&catalogsJSON, "catalogs_json", DetailsTimeout, []string{"holotree", "catalogs", "--json"}},
		{&spacesJSON, "spaces_json", DetailsTimeout, []string{"holotree", "list", "--json"}},
		{&settingsJSON, "settings_json", DetailsTimeout, []string{"config", "settings", "--json"}},
	}

	var wg sync.WaitGroup
	wg.Add(len(queries))
	for _, q := range queries {
		go func() {
			defer wg.Done()
			*q.dst = c.rcc(ctx, q.label, q.timeout, q.args...)
		}()
	}
	wg.Wait()

	info := model.ToolInfo{Version: UnknownVersion}
	if version.Success() {
		info.Available = true
		if v := strings.TrimSpace(version.Output()); v != "" {
			info.Version = v
		}
	}
	if catalogs.Success() {
		info.CatalogCount = len(ParseCatalogs(catalogs.Stdout))
	}

	var catalogRows []catalogDetail
	if catalogsJSON.Success() {
		catalogRows = parseCatalogDetails(catalogsJSON.Output())
	}
	var spaces []model.HolotreeSpace
	if spacesJSON.Success() {
		spaces = parseSpaceDetails(spacesJSON.Output())
	}
	info.Details = summarizeDetails(catalogRows, spaces)
	if len(spaces) == 0 && info.Available {
		list := c.rcc(ctx, "spaces", DetailsTimeout, "holotree", "list")
		if list.Success() {
			info.Details.SpaceCount = countSpaceLines(list.Output())
		}
	}
	if settingsJSON.Success() {
		info.Details.Settings = parseSettings(settingsJSON.Output())
	}
	return info
}

// Catalogs lists catalogs and keeps the unfiltered output. Failures are
// returned as *CommandError.
func (c *Client) Catalogs(ctx context.Context) (model.CatalogList, error) {
	res := c.rcc(ctx, "catalogs", CatalogsTimeout, "holotree", "catalogs")
	if !res.Success() {
		return model.CatalogList{}, &CommandError{Op: "holotree catalogs", Result: res}
	}
	catalogs := ParseCatalogs(res.Stdout)
	return model.CatalogList{
		Catalogs:  catalogs,
		Count:     len(catalogs),
		RawOutput: res.Stdout,
	}, nil
}

// ImportZip imports a hololib archive that already sits in the zip directory.
func (c *Client) ImportZip(ctx context.Context, filename string) model.OperationResult {
	zipPath := filepath.Join(c.cfg.HololibZipPath, filename)
	if !c.cfg.LocalMode() {
		zipPath = path.Join(c.cfg.HololibZipPathInContainer, filename)
	}

	res := c.rcc(ctx, "import", ImportTimeout, "holotree", "import", zipPath)
	output := res.Output()
	switch {
	case res.TimedOut:
		return model.OperationResult{TimedOut: true, Error: "Import operation exceeded 2 minutes"}
	case res.Success():
		return model.OperationResult{Success: true, Message: "Import completed", Output: output}
	default:
		msg := strings.TrimSpace(output)
		if msg == "" {
			msg = "Import failed"
		}
		return model.OperationResult{Error: msg}
	}
}

// RebuildCatalogs exports and re-imports a catalog for every robot that has
// both robot.yaml and conda.yaml.
func (c *Client) RebuildCatalogs(ctx context.Context) model.OperationResult {
	var res Result
	if c.cfg.LocalMode() {
		script := rebuildScript(c.cfg.RCCBinary, c.cfg.RobotsPath, c.cfg.HololibZipPath)
		res = c.run(ctx, "rebuild", RebuildTimeout, "/bin/sh", "-lc", script)
	} else {
		script := rebuildScript("rcc", c.cfg.RobotsPathInContainer, c.cfg.HololibZipInternalPath)
		res = c.dockerExec(ctx, "rebuild", RebuildTimeout, "/bin/sh", "-lc", script)
	}

	output := res.Output()
	switch {
	case res.TimedOut:
		return model.OperationResult{
			TimedOut: true,
			Message:  "Catalog rebuild timed out (exceeded 5 minutes)",
			Error:    "Operation took too long",
		}
	case res.Success():
		return model.OperationResult{Success: true, Message: "Catalogs rebuilt successfully", Output: output}
	default:
		errMsg := res.Stderr
		if strings.TrimSpace(errMsg) == "" {
			errMsg = output
		}
		return model.OperationResult{Message: "Catalog rebuild failed", Output: output, Error: errMsg}
	}
}

func (c *Client) rcc(ctx context.Context, label string, timeout time.Duration, args ...string) Result {
	if c.cfg.LocalMode() {
		return c.run(ctx, label, timeout, c.cfg.RCCBinary, args...)
	}
	return c.dockerExec(ctx, label, timeout, append([]string{"rcc"}, args...)...)
}

func (c *Client) dockerExec(ctx context.Context, label string, timeout time.Duration, args ...string) Result {
	container := c.cfg.RCCContainerName
	if container == "" {
		return unavailable("RCC container is not configured. Set RCC_CONTAINER_NAME or use RCC_EXECUTION_MODE=local.")
	}

	res := c.run(ctx, label, timeout, "docker", append([]string{"exec", container}, args...)...)
	if strings.Contains(res.Stderr, "No such container") {
		return unavailable(fmt.Sprintf("RCC container '%s' not found. Use RCC_EXECUTION_MODE=local or start the RCC container.", container))
	}
	return res
}

func (c *Client) run(ctx context.Context, label string, timeout time.Duration, name string, args ...string) Result {
	ctx, span := c.tracer.Start(ctx, "rcc."+label, trace.WithAttributes(
		attribute.String("rcc.command", name),
		attribute.String("rcc.mode", c.cfg.RCCExecutionMode),
	))
	defer span.End()

	start := time.Now()
	res := c.runner.Run(ctx, timeout, name, args...)
	elapsed := time.Since(start)

	outcome := outcomeOf(res)
	c.metrics.ObserveCommand(label, outcome, elapsed)
	span.SetAttributes(attribute.Int("rcc.exit_code", res.ExitCode), attribute.Bool("rcc.timed_out", res.TimedOut))

	if !res.Success() {
		span.SetStatus(codes.Error, outcome)
		c.logger.Debug("rcc command failed",
			zap.String("command", label),
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("timed_out", res.TimedOut),
			zap.Duration("duration", elapsed),
			zap.Error(res.Err),
		)
	}
	return res
}

func outcomeOf(res Result) string {
	switch {
	case res.Success():
		return "success"
	case res.TimedOut:
		return "timeout"
	default:
		return "failure"
	}
}
