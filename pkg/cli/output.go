package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/device"
	"github.com/devicelab-dev/bryndza/pkg/driver/ios"
	"github.com/devicelab-dev/bryndza/pkg/logger"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// treeView is the printable form of a UI tree.
type treeView struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Class       string            `json:"class,omitempty" yaml:"class,omitempty"`
	Text        string            `json:"text,omitempty" yaml:"text,omitempty"`
	Identifier  string            `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tag         string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Bounds      core.Bounds       `json:"bounds" yaml:"bounds,flow"`
	Visible     bool              `json:"visible" yaml:"visible"`
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Children    []*treeView       `json:"children,omitempty" yaml:"children,omitempty"`
}

func newTreeView(n *platform.StaticNode) *treeView {
	p := n.Projection
	v := &treeView{
		ID:          p.ID,
		Class:       p.Class,
		Text:        p.Text,
		Identifier:  p.Identifier,
		Description: p.Description,
		Tag:         p.Tag,
		Bounds:      p.Bounds,
		Visible:     p.Visible,
		Enabled:     p.Enabled,
		Attributes:  p.Attributes,
	}
	for _, k := range n.Kids {
		v.Children = append(v.Children, newTreeView(k))
	}
	return v
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List connected Android and iOS devices",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "virtual", Usage: "Also list Android AVDs and iOS simulators that can be booted"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(c)
		defer cancel()
		return writeYAML(c.App.Writer, listDevices(ctx, cfg, c.Bool("virtual")))
	},
}

// deviceList is what the devices command prints.
type deviceList struct {
	Android    []device.DeviceInfo `yaml:"android"`
	IOS        []ios.Device        `yaml:"ios"`
	AVDs       []device.AVD        `yaml:"avds,omitempty"`
	Simulators []device.Simulator  `yaml:"simulators,omitempty"`
}

// Discovery sources. Tests replace them.
var (
	androidDevices = func(ctx context.Context, cfg *config.Config) ([]device.DeviceInfo, error) {
		return newADB(cfg, "").Devices(ctx)
	}
	avdName = func(ctx context.Context, cfg *config.Config, serial string) (string, error) {
		return newADB(cfg, serial).AVDName(ctx)
	}
	iosDevices = ios.ListDevices
	avds       = func(ctx context.Context, running map[string]bool) ([]device.AVD, error) {
		return device.ListAVDs(ctx, nil, running)
	}
	simulators = func(ctx context.Context) ([]device.Simulator, error) {
		return device.ListSimulators(ctx, nil)
	}
)

func newADB(cfg *config.Config, serial string) *device.ADB {
	return device.NewADB(cfg.Android.ADBPath, serial, cfg.Android.ADBTimeout)
}

// listDevices queries every discovery source. A source that fails is
// logged and reported as empty.
func listDevices(ctx context.Context, cfg *config.Config, virtual bool) deviceList {
	out := deviceList{Android: []device.DeviceInfo{}, IOS: []ios.Device{}}
	if devs, err := androidDevices(ctx, cfg); err != nil {
		logger.Warn("android devices: %v", err)
	} else if devs != nil {
		out.Android = devs
	}
	if devs, err := iosDevices(); err != nil {
		logger.Warn("ios devices: %v", err)
	} else if devs != nil {
		out.IOS = devs
	}
	if !virtual {
		return out
	}

	running := make(map[string]bool)
	for _, d := range out.Android {
		if !d.IsEmulator || d.State != "device" {
			continue
		}
		if name, err := avdName(ctx, cfg, d.Serial); err != nil {
			logger.Debug("avd name of %s: %v", d.Serial, err)
		} else {
			running[name] = true
		}
	}
	if list, err := avds(ctx, running); err != nil {
		logger.Warn("android virtual devices: %v", err)
	} else {
		out.AVDs = list
	}
	if list, err := simulators(ctx); err != nil {
		logger.Warn("ios simulators: %v", err)
	} else {
		out.Simulators = list
	}
	return out
}
