package embedded

import (
	"os"
	"time"

	"github.com/marmos91/dittofs-embedded/pkg/config"
)

// SystemInformation describes the environment a Controller runs in.
type SystemInformation struct {
	ConfigDir string
	DataDir   string
	Version   string
	Hostname  string
	// Embedded is always true for subsystems started through a Controller.
	Embedded  bool
	CreatedAt time.Time
}

func newSystemInformation(cfg *config.Config, version string) SystemInformation {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if version == "" {
		version = "dev"
	}
	return SystemInformation{
		ConfigDir: config.GetConfigDir(),
		DataDir:   cfg.Node.DataDir,
		Version:   version,
		Hostname:  hostname,
		Embedded:  true,
		CreatedAt: time.Now(),
	}
}
