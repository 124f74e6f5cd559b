// Package version хранит сведения о сборке, выставляемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/marketplace/internal/version.version=v1.2.0
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build описывает собранный бинарник.
type Build struct {
	Version string
	Commit  string
	Date    string
}

var (
	buildOnce sync.Once
	build     Build
)

// Get возвращает сведения о сборке. Если commit и date не заданы через -ldflags,
// они берутся из VCS-меток, которые go build встраивает сам.
func Get() Build {
	buildOnce.Do(func() {
		build = resolve(version, commit, date, debug.ReadBuildInfo)
	})
	return build
}

func resolve(v, c, d string, read func() (*debug.BuildInfo, bool)) Build {
	b := Build{Version: v, Commit: c, Date: d}
	if b.Version == "" {
		b.Version = "dev"
	}
	if info, ok := read(); ok && info != nil {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = s.Value
				}
			case "vcs.time":
				if b.Date == "" {
					b.Date = s.Value
				}
			}
		}
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return Get().Version }

// String форматирует сведения о сборке для --version.
func String() string {
	b := Get()
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, shortCommit(b.Commit), b.Date)
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
