// Package resolver decides which concrete executable launches the backend
// service: a packaged native binary, a virtualenv interpreter, or the
// system interpreter, in that order.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Mode selects the artifact search strategy.
type Mode string

const (
	// ModePackaged is an installed build: the native binary must exist
	// under the resources directory.
	ModePackaged Mode = "packaged"
	// ModeDevelopment runs from a source checkout, preferring a locally
	// built binary when one exists.
	ModeDevelopment Mode = "development"
)

// Relative locations probed for a virtualenv interpreter, first match wins.
var venvInterpreters = []string{
	filepath.Join(".venv", "bin", "python"),
	filepath.Join("venv", "bin", "python"),
	filepath.Join(".venv", "Scripts", "python.exe"),
	filepath.Join("venv", "Scripts", "python.exe"),
}

// Config describes where artifacts live.
type Config struct {
	Mode         Mode
	ResourcesDir string // installed resources root (packaged mode)
	ServiceDir   string // backend source checkout (development mode)
	BinaryName   string // packaged binary base name, without extension
	Entrypoint   string // script passed to the interpreter, relative to ServiceDir
}

// Command is a fully resolved launch target.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// ResolutionError reports that no viable executable was found. It carries a
// listing of the directories that were searched; packaging failures are
// otherwise indistinguishable from path-computation bugs.
type ResolutionError struct {
	Mode     Mode
	Searched []string
	Listings map[string][]string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no viable executable (mode=%s); searched: %s", e.Mode, strings.Join(e.Searched, ", "))
	for dir, names := range e.Listings {
		fmt.Fprintf(&b, "; %s contains [%s]", dir, strings.Join(names, " "))
	}
	return b.String()
}

// Resolve picks the executable, argument vector, and working directory for
// one launch attempt. Probe order:
//  1. packaged mode: the packaged binary, or fail with listings
//  2. development mode: a packaged binary built into the dev tree, if any
//  3. a virtualenv interpreter under ServiceDir
//  4. the platform's system interpreter
func Resolve(cfg Config) (Command, error) {
	bin := binaryName(cfg.BinaryName)

	if cfg.Mode == ModePackaged {
		path := filepath.Join(cfg.ResourcesDir, bin)
		if fileExists(path) {
			return Command{Path: path, Dir: filepath.Dir(path)}, nil
		}
		return Command{}, &ResolutionError{
			Mode:     cfg.Mode,
			Searched: []string{path},
			Listings: map[string][]string{cfg.ResourcesDir: listDir(cfg.ResourcesDir)},
		}
	}

	// Development: a binary built into the dev tree wins, so packaged
	// artifacts can be exercised without a full install.
	if devBin := filepath.Join(cfg.ServiceDir, "dist", bin); fileExists(devBin) {
		return Command{Path: devBin, Dir: filepath.Dir(devBin)}, nil
	}

	entry := cfg.Entrypoint
	if entry == "" {
		entry = "main.py"
	}
	for _, rel := range venvInterpreters {
		path := filepath.Join(cfg.ServiceDir, rel)
		if fileExists(path) {
			return Command{Path: path, Args: []string{entry}, Dir: cfg.ServiceDir}, nil
		}
	}

	return Command{Path: systemInterpreter(), Args: []string{entry}, Dir: cfg.ServiceDir}, nil
}

func binaryName(base string) string {
	if base == "" {
		base = "sidecar-backend"
	}
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func systemInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// listDir enumerates dir's entries for diagnostics, sorted and best-effort.
func listDir(dir string) []string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return []string{fmt.Sprintf("<unreadable: %v>", err)}
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
