// Package config locates wsbridge's per-instance files. The persisted
// configuration itself lives in the store subpackage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	DefaultInstance = "default"

	// HomeEnv overrides the wsbridge home directory (~/.wsbridge).
	HomeEnv = "WSBRIDGE_HOME"
)

var instanceNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Layout is where one instance keeps its files under Home.
type Layout struct {
	Dir     string
	StateDB string
	LogDir  string
	RunDir  string // pid file
}

// Home returns $WSBRIDGE_HOME, or ~/.wsbridge when unset.
func Home() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandHome(dir)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".wsbridge")
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// "~user" forms are left alone.
func ExpandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	home, _ := os.UserHomeDir()
	switch {
	case rest == "":
		return home
	case rest[0] == '/' || rest[0] == os.PathSeparator:
		return filepath.Join(home, rest[1:])
	default:
		return path
	}
}

// ValidateInstance rejects names that could escape the instances directory.
func ValidateInstance(name string) error {
	if !instanceNameRe.MatchString(name) {
		return fmt.Errorf("invalid instance name %q", name)
	}
	return nil
}

// InstanceLayout returns the layout for name. An empty name is
// DefaultInstance. Nothing is created.
func InstanceLayout(name string) Layout {
	if name == "" {
		name = DefaultInstance
	}
	dir := filepath.Join(Home(), "instances", name)
	return Layout{
		Dir:     dir,
		StateDB: filepath.Join(dir, "state.db"),
		LogDir:  filepath.Join(dir, "logs"),
		RunDir:  filepath.Join(dir, "run"),
	}
}

// Create makes the layout's directories private to the current user; the
// instance directory also holds the credentials key.
func (l Layout) Create() error {
	for _, dir := range []string{l.Dir, l.LogDir, l.RunDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// StateDBPath returns override (with ~ expanded) when set. Otherwise it
// validates instance, creates its layout and returns its state database.
func StateDBPath(instance, override string) (string, error) {
	if override != "" {
		return ExpandHome(override), nil
	}
	if instance == "" {
		instance = DefaultInstance
	}
	if err := ValidateInstance(instance); err != nil {
		return "", err
	}
	layout := InstanceLayout(instance)
	if err := layout.Create(); err != nil {
		return "", err
	}
	return layout.StateDB, nil
}
