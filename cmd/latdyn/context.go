package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/fitting"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/persist"
	"latdyn/internal/preflight"
	"latdyn/internal/renorm"
	"latdyn/internal/services"
	"latdyn/internal/shengbte"
)

// pipelineOracle is every oracle operation the tasks use.
type pipelineOracle interface {
	fitting.Oracle
	renorm.Oracle
	persist.Oracle
}

// taskDeps carries the seams tests replace.
type taskDeps struct {
	newOracle       func(cfg *config.Config, dir *artifacts.Dir) (pipelineOracle, error)
	shengbteOptions []shengbte.Option
}

func defaultTaskDeps() taskDeps {
	return taskDeps{
		newOracle: func(cfg *config.Config, dir *artifacts.Dir) (pipelineOracle, error) {
			command, err := cfg.OracleCommand()
			if err != nil {
				return nil, services.Wrap(services.ErrConfiguration, "oracle", "init", "", err)
			}
			timeout := time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second
			client, err := oracle.New(command, dir.Root(), oracle.WithTimeout(timeout))
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

type commandContext struct {
	configFlag *string
	dirFlag    *string
	deps       taskDeps

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, dirFlag *string, deps taskDeps) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dirFlag:    dirFlag,
		deps:       deps,
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
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", "", err)
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

// workDirPath resolves --dir, then paths.work_dir, then the current directory.
func (c *commandContext) workDirPath() string {
	if c.dirFlag != nil {
		if dir := strings.TrimSpace(*c.dirFlag); dir != "" {
			return dir
		}
	}
	if c.config != nil && c.config.Paths.WorkDir != "" {
		return c.config.Paths.WorkDir
	}
	return "."
}

// taskEnv is what a pipeline task body receives.
type taskEnv struct {
	cfg    *config.Config
	dir    *artifacts.Dir
	logger *slog.Logger
}

// runTask opens and locks the working directory, builds a logger carrying a
// fresh correlation ID and the task name, and runs fn.
func (c *commandContext) runTask(cmd *cobra.Command, task string, fn func(ctx context.Context, env taskEnv) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	path := c.workDirPath()
	if check := preflight.CheckDirectoryAccess("Working directory", path); !check.Passed {
		return services.Wrap(services.ErrConfiguration, task, "preflight", check.Detail, nil)
	}
	dir, err := artifacts.Open(path)
	if err != nil {
		return err
	}
	lock, err := dir.Lock()
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	base, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithTask(ctx, task)
	logger := logging.WithContext(ctx, base)

	start := time.Now()
	logger.Info("task started", logging.String("dir", dir.Root()))
	if err := fn(ctx, taskEnv{cfg: cfg, dir: dir, logger: logger}); err != nil {
		logging.ErrorWithContext(logger, "task failed", "task_failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(start)),
		)
		return err
	}
	logger.Info("task completed", logging.Duration("elapsed", time.Since(start)))
	return nil
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
