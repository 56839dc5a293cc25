// Package driver selects and constructs the backend for a configuration.
package driver

import (
	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/driver/android"
	"github.com/devicelab-dev/bryndza/pkg/driver/ios"
	"github.com/devicelab-dev/bryndza/pkg/driver/macos"
	"github.com/devicelab-dev/bryndza/pkg/driver/mock"
	"github.com/devicelab-dev/bryndza/pkg/driver/web"
	"github.com/devicelab-dev/bryndza/pkg/driver/windows"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// Open constructs the backend named by cfg.Platform, or the host's default
// backend when it is empty. The backend is not connected.
func Open(cfg *config.Config) (platform.Platform, error) {
	if cfg == nil {
		return nil, core.ConfigError("nil config")
	}
	name, err := platform.Detect(cfg.Platform)
	if err != nil {
		return nil, err
	}
	logger.Debug("driver: using %s backend", name)

	switch name {
	case platform.Android:
		return android.New(cfg.Android), nil
	case platform.IOS:
		return ios.New(cfg.IOS), nil
	case platform.Windows:
		return windows.New(cfg.Windows), nil
	case platform.MacOS:
		return macos.New(cfg.MacOS), nil
	case platform.Web:
		return web.New(cfg.Web), nil
	case platform.Mock:
		return mock.New(mock.Config{}, nil), nil
	}
	return nil, core.PlatformNotSupported("platform " + name)
}
