// Package version хранит сведения о сборке, которые задаются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/storefront-sync/internal/version.version=v1.2.0
package version

import (
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build — сведения о текущем бинарнике.
type Build struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// Current возвращает сведения о сборке.
func Current() Build {
	return Build{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}
}

// Dev сообщает, что бинарник собран без -ldflags.
func (b Build) Dev() bool {
	return b.Version == "dev"
}

// Fields — поля для стартовой записи в лог.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"version":    b.Version,
		"commit":     b.Commit,
		"build_date": b.Date,
		"go_version": b.GoVersion,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
}
