package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidingest/internal/acquisition"
	"vidingest/internal/audio"
	"vidingest/internal/config"
	"vidingest/internal/deps"
	"vidingest/internal/logging"
	"vidingest/internal/metadata"
	"vidingest/internal/models"
	"vidingest/internal/pipeline"
	"vidingest/internal/progress"
	"vidingest/internal/queue"
	"vidingest/internal/services/ytdlp"
	"vidingest/internal/storage"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	closers []func() error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *commandContext) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *commandContext) openStore() (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	c.onClose(store.Close)
	return store, nil
}

// components holds the wired pipeline collaborators for one invocation.
type components struct {
	cfg       *config.Config
	logger    *slog.Logger
	tools     deps.Toolchain
	storage   *storage.Manager
	extractor *ytdlp.Client
	resolver  *metadata.Resolver
	selector  *models.Selector
	acquirer  *acquisition.Service
	engine    *audio.Engine
	sink      acquisition.ProgressSink
	pipeline  *pipeline.Pipeline
}

// build resolves the toolchain once and wires every component. Tool
// resolution failures are fatal: no component searches for binaries later.
func (c *commandContext) build(ctx context.Context) (*components, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	tools, _, err := deps.ResolveToolchain(cfg)
	if err != nil {
		return nil, err
	}

	store := storage.NewFromConfig(cfg, logger)
	extractor, err := ytdlp.New(tools.YtDlp, ytdlp.WithFFmpegLocation(tools.FFmpeg))
	if err != nil {
		return nil, err
	}
	var fallback metadata.Extractor
	if cfg.Metadata.FallbackEnabled {
		fallback = extractor
	}
	resolver := metadata.NewFromConfig(cfg, fallback, logger)
	selector := models.NewFromConfig(cfg, store, logger)
	acquirer := acquisition.NewService(extractor, store, acquisition.OptionsFromConfig(cfg), logger)
	engine := audio.NewEngine(audio.OptionsFromConfig(cfg, tools), acquirer, extractor, store, logger)

	sink, closeSink := progress.NewFromConfig(ctx, cfg, logger)
	c.onClose(closeSink)

	return &components{
		cfg:       cfg,
		logger:    logger,
		tools:     tools,
		storage:   store,
		extractor: extractor,
		resolver:  resolver,
		selector:  selector,
		acquirer:  acquirer,
		engine:    engine,
		sink:      sink,
		pipeline:  pipeline.New(resolver, selector, engine, logger),
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// storageManager builds the artifact manager without resolving tools, for
// commands that only touch the filesystem.
func (c *commandContext) storageManager() (*storage.Manager, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	return storage.NewFromConfig(cfg, logger), logger, nil
}
