package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/config"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/controller"
	"github.com/phantomwg/wsbridge/internal/engine/wstunnelexec"
	"github.com/phantomwg/wsbridge/internal/logging"
)

const (
	pidFileName = "wsbridge.pid"
	logFileName = "wsbridge.log"
)

// resolveDB returns the state database selected by --db or --instance.
func resolveDB(cmd *cobra.Command) (string, error) {
	instance, _ := cmd.Flags().GetString("instance")
	dbPath, _ := cmd.Flags().GetString("db")
	return config.StateDBPath(instance, dbPath)
}

// runDir is where `run` keeps its pid file: next to the database when --db is
// given, the instance run directory otherwise.
func runDir(cmd *cobra.Command) string {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath != "" {
		return filepath.Dir(config.ExpandHome(dbPath))
	}
	instance, _ := cmd.Flags().GetString("instance")
	return config.InstanceLayout(instance).RunDir
}

// logDir holds the `run` log file, following the same rule as runDir.
func logDir(cmd *cobra.Command) string {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath != "" {
		return filepath.Dir(config.ExpandHome(dbPath))
	}
	instance, _ := cmd.Flags().GetString("instance")
	return config.InstanceLayout(instance).LogDir
}

// newLogger builds the process logger from the persistent flags. file, when
// non-empty, receives a copy of every entry.
func newLogger(cmd *cobra.Command, file string) (*logrus.Logger, func() error, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return logging.New(logging.Options{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
		File:   file,
	})
}

// openStore opens the selected database directly, for commands that edit or
// show configuration without touching the lifecycle state.
func openStore(cmd *cobra.Command, readOnly bool) (*store.Store, error) {
	dbPath, err := resolveDB(cmd)
	if err != nil {
		return nil, err
	}
	logger, _, err := newLogger(cmd, "")
	if err != nil {
		return nil, err
	}
	return store.Open(store.Options{
		DBPath:   dbPath,
		ReadOnly: readOnly,
		Logger:   logging.Component(logger, "store"),
	})
}

func newEngine(cmd *cobra.Command, logger logrus.FieldLogger) *wstunnelexec.Engine {
	binary, _ := cmd.Flags().GetString("wstunnel")
	return wstunnelexec.New(wstunnelexec.Options{Binary: binary, Logger: logger})
}

func newController(cmd *cobra.Command, logger logrus.FieldLogger) *controller.Controller {
	return controller.New(controller.Options{
		Engine: newEngine(cmd, logger),
		Logger: logger,
	})
}
