package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/attribution"
	"github.com/theirongolddev/burnmeter/internal/calibration"
	"github.com/theirongolddev/burnmeter/internal/claudeai"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/logger"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
	"github.com/theirongolddev/burnmeter/internal/scan"
	"github.com/theirongolddev/burnmeter/internal/source"
	"github.com/theirongolddev/burnmeter/internal/store"
	"github.com/theirongolddev/burnmeter/internal/worktime"
)

// engine is the wired estimation stack shared by every command.
type engine struct {
	cfg       config.Config
	claudeDir string
	log       *zap.Logger

	cache   *store.Cache
	counter *scan.Counter
	work    *worktime.Estimator
	calib   *calibration.Store
	client  *claudeai.Client
	pricer  *config.Pricer
	pipe    *pipeline.Pipeline
}

// newEngine loads config and builds the pipeline. Extra pipeline options
// (an observer, for example) are appended after the defaults.
func newEngine(opts ...pipeline.Option) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if flagVerbose {
		level = "debug"
	}
	log, err := logger.New(cfg.Logging.Env, level)
	if err != nil {
		return nil, err
	}

	claudeDir := flagClaudeDir
	if claudeDir == "" {
		claudeDir = config.ClaudeDir(cfg)
	}

	if err := source.CheckClaudeDir(claudeDir); err != nil {
		log.Warn("claude directory unavailable, local tiers will read zero", zap.Error(err))
	}

	e := &engine{cfg: cfg, claudeDir: claudeDir, log: log, pricer: config.NewPricer(cfg.Pricing)}

	if !flagNoCache {
		c, err := store.Open(store.DefaultPath())
		if err != nil {
			log.Warn("cache unavailable, running memory-only", zap.Error(err))
		} else {
			e.cache = c
		}
	}

	scanOpts := []scan.Option{scan.WithLogger(log.Named("scan"))}
	workOpts := []worktime.Option{worktime.WithLogger(log.Named("worktime"))}
	var backend calibration.Backend
	if e.cache != nil {
		scanOpts = append(scanOpts, scan.WithStore(e.cache))
		workOpts = append(workOpts, worktime.WithStore(e.cache))
		backend = e.cache
	}
	e.counter = scan.New(claudeDir, scanOpts...)
	e.work = worktime.New(claudeDir, workOpts...)
	e.calib = calibration.New(backend, calibration.WithLogger(log.Named("calibration")))
	e.client = newClaudeClient(cfg)

	deps := pipeline.Deps{
		Sources:    pipeline.FileSources(claudeDir),
		Counter:    e.counter,
		Calibrator: e.calib,
		Work:       e.work,
		Attributor: attribution.New(claudeDir),
		Pricer:     e.pricer,
		Projects:   projectsFunc(cfg, claudeDir, log),
	}
	if e.client != nil {
		deps.Auth = e.client
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithFetchTimeout(cfg.ClaudeAI.FetchTimeout.Duration),
		pipeline.WithLogger(log.Named("pipeline")),
	}
	e.pipe = pipeline.New(deps, config.ResolveLimits(cfg, claudeDir), append(pipeOpts, opts...)...)
	return e, nil
}

// Close releases the cache database and flushes the logger.
func (e *engine) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	_ = e.log.Sync()
}

func newClaudeClient(cfg config.Config) *claudeai.Client {
	var opts []claudeai.Option
	if cfg.ClaudeAI.OrgID != "" {
		opts = append(opts, claudeai.WithOrgID(cfg.ClaudeAI.OrgID))
	}
	if d := cfg.ClaudeAI.MinFetchInterval.Duration; d > 0 {
		opts = append(opts, claudeai.WithMinInterval(d))
	}
	return claudeai.NewClient(config.GetSessionKey(cfg), opts...)
}

// projectsFunc returns the configured project list, or discovers projects
// under the Claude data directory on every call when none are configured.
func projectsFunc(cfg config.Config, claudeDir string, log *zap.Logger) func() []attribution.Project {
	if len(cfg.Projects) > 0 {
		projects := make([]attribution.Project, len(cfg.Projects))
		for i, p := range cfg.Projects {
			projects[i] = attribution.Project{Name: p.Name, Path: p.Path}
		}
		return func() []attribution.Project { return projects }
	}
	return func() []attribution.Project {
		projects, err := attribution.DiscoverProjects(claudeDir)
		if err != nil {
			log.Debug("project discovery failed", zap.Error(err))
		}
		return projects
	}
}
