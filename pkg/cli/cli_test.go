package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/config"
	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/device"
	"github.com/devicelab-dev/bryndza/pkg/driver/ios"
	"github.com/devicelab-dev/bryndza/pkg/driver/mock"
	"github.com/devicelab-dev/bryndza/pkg/platform"
	"github.com/urfave/cli/v2"
)

// mocks installs an openPlatform that hands out a fresh mock per target.
type mocks struct {
	mu   sync.Mutex
	root func() *mock.Node
	made []*mock.Platform
	cfgs []*config.Config
	fail error
}

func useMocks(t *testing.T, root func() *mock.Node) *mocks {
	t.Helper()
	m := &mocks{root: root}
	prev := openPlatform
	openPlatform = func(cfg *config.Config) (platform.Platform, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.fail != nil {
			return nil, m.fail
		}
		var tree *mock.Node
		if m.root != nil {
			tree = m.root()
		}
		p := mock.New(mock.Config{}, tree)
		m.made = append(m.made, p)
		m.cfgs = append(m.cfgs, cfg)
		return p, nil
	}
	t.Cleanup(func() { openPlatform = prev })
	return m
}

func (m *mocks) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.made {
		for _, a := range p.Actions() {
			out = append(out, strings.TrimSpace(a.Kind+" "+a.Arg))
		}
	}
	return out
}

// run executes the app with -p mock and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(&out)
	app.ErrWriter = io.Discard
	full := append([]string{"bryndza", "-p", "mock", "--env-file", "", "--timeout", "300ms"}, args...)
	err := app.Run(full)
	return out.String(), err
}

func loginTree() *mock.Node {
	return &mock.Node{
		Class:  "View",
		Bounds: core.Bounds{Width: 1080, Height: 2400},
		Children: []*mock.Node{
			{Class: "EditText", ID: "user", Text: "alice", Bounds: core.Bounds{X: 40, Y: 100, Width: 600, Height: 80}},
			{Class: "Button", ID: "login", Text: "Sign in", Bounds: core.Bounds{X: 40, Y: 300, Width: 300, Height: 100}},
			{Class: "Button", ID: "delete", Text: "Delete", Disabled: true, Bounds: core.Bounds{X: 40, Y: 500, Width: 300, Height: 100}},
		},
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ElementNotFound("id=x"), 2},
		{core.NotInteractable("x"), 2},
		{fmt.Errorf("session 1: %w", core.ErrTimeout), 3},
		{core.ConnectionError("adb", errors.New("refused")), 4},
		{core.SessionError("not started"), 4},
		{core.ConfigError("bad"), 5},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestForDevice(t *testing.T) {
	tests := []struct {
		platform string
		check    func(*config.Config) string
	}{
		{"android", func(c *config.Config) string { return c.Android.Serial }},
		{"ios", func(c *config.Config) string { return c.IOS.UDID }},
		{"windows", func(c *config.Config) string { return c.Windows.Window }},
		{"darwin", func(c *config.Config) string { return c.MacOS.App }},
		{"web", func(c *config.Config) string { return c.Web.RemoteURL }},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			cfg := config.Default()
			cfg.Platform = tt.platform
			got, err := forDevice(cfg, "dev-1")
			if err != nil {
				t.Fatalf("forDevice() error = %v", err)
			}
			if tt.check(got) != "dev-1" {
				t.Errorf("device not applied: %+v", got)
			}
			if tt.check(cfg) != "" {
				t.Error("forDevice() modified the shared config")
			}
		})
	}

	cfg := config.Default()
	cfg.Platform = "symbian"
	if _, err := forDevice(cfg, "x"); !errors.Is(err, core.ErrPlatformNotSupported) {
		t.Errorf("forDevice(symbian) error = %v", err)
	}
}

func TestFind(t *testing.T) {
	useMocks(t, loginTree)

	out, err := run(t, "find", "--locator", "text: Sign in")
	if err != nil {
		t.Fatalf("find error = %v", err)
	}
	for _, want := range []string{"id: Button@", "Sign in", "visible: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "find", "--all", "--locator", "className: Button")
	if err != nil {
		t.Fatalf("find --all error = %v", err)
	}
	if n := strings.Count(out, "- id:"); n != 2 {
		t.Errorf("find --all printed %d elements, want 2:\n%s", n, out)
	}

	_, err = run(t, "find", "--locator", "id: nope")
	if exitCode(err) != 2 {
		t.Errorf("find(missing) error = %v, exit %d", err, exitCode(err))
	}

	_, err = run(t, "find", "--locator", "{bogus: 1}")
	if exitCode(err) != 5 {
		t.Errorf("find(bad locator) error = %v, exit %d", err, exitCode(err))
	}
}

func TestExists(t *testing.T) {
	useMocks(t, loginTree)

	out, err := run(t, "exists", "--locator", "id: login")
	if err != nil || strings.TrimSpace(out) != "true" {
		t.Errorf("exists = %q, %v", out, err)
	}
	out, err = run(t, "exists", "--locator", "id: gone")
	if strings.TrimSpace(out) != "false" || !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("exists(missing) = %q, %v", out, err)
	}
}

func TestWait(t *testing.T) {
	useMocks(t, loginTree)

	if _, err := run(t, "wait", "--locator", "id: login", "--until", "clickable"); err != nil {
		t.Errorf("wait clickable error = %v", err)
	}
	if _, err := run(t, "wait", "--locator", "id: user", "--text", "ali", "--strategy", "exponential"); err != nil {
		t.Errorf("wait text error = %v", err)
	}
	out, err := run(t, "wait", "--locator", "id: spinner", "--until", "gone")
	if err != nil || strings.TrimSpace(out) != "gone" {
		t.Errorf("wait gone = %q, %v", out, err)
	}
	if _, err := run(t, "wait", "--locator", "id: delete", "--until", "clickable"); exitCode(err) != 3 {
		t.Errorf("wait clickable(disabled) error = %v, want timeout", err)
	}
	if _, err := run(t, "wait", "--locator", "id: login", "--until", "sideways"); exitCode(err) != 5 {
		t.Errorf("wait --until sideways error = %v, want config error", err)
	}
	if _, err := run(t, "wait", "--locator", "id: login", "--strategy", "random"); exitCode(err) != 5 {
		t.Errorf("wait --strategy random error = %v, want config error", err)
	}
}

func TestInteractionCommands(t *testing.T) {
	m := useMocks(t, loginTree)

	steps := [][]string{
		{"tap", "--locator", "id: login"},
		{"tap", "--double", "--locator", "id: login"},
		{"tap", "--long", "2s", "--locator", "id: login"},
		{"type", "--clear", "--text", "bob", "--locator", "id: user"},
		{"swipe", "--direction", "left", "--locator", "id: user"},
	}
	for _, args := range steps {
		if _, err := run(t, args...); err != nil {
			t.Fatalf("%v error = %v", args, err)
		}
	}
	want := "click|doubleClick|longPress 2s|clear|typeText bob|swipe"
	got := strings.Join(m.actions(), "|")
	if !strings.HasPrefix(got, want) {
		t.Errorf("actions = %q, want prefix %q", got, want)
	}

	if _, err := run(t, "swipe", "--direction", "diagonal", "--locator", "id: user"); exitCode(err) != 5 {
		t.Errorf("swipe diagonal error = %v, want config error", err)
	}
}

func TestEnvVariables(t *testing.T) {
	m := useMocks(t, loginTree)

	if _, err := run(t, "-e", "NAME=bob", "-e", "SUFFIX=!", "type", "--text", "${NAME}${SUFFIX}", "--locator", "id: user"); err != nil {
		t.Fatalf("type error = %v", err)
	}
	if got := strings.Join(m.actions(), "|"); got != "typeText bob!" {
		t.Errorf("actions = %q, want typeText bob!", got)
	}
	if _, err := run(t, "-e", "WHO=ali", "wait", "--text", "${WHO}", "--locator", "id: user"); err != nil {
		t.Errorf("wait --text with variable error = %v", err)
	}
	if _, err := run(t, "-e", "WHO=alice", "wait", "--script", "element.text === WHO", "--locator", "id: user"); err != nil {
		t.Errorf("wait --script with variable error = %v", err)
	}
	if _, err := run(t, "-e", "novalue", "exists", "--locator", "id: user"); exitCode(err) != 5 {
		t.Errorf("malformed --env error = %v, want config error", err)
	}
}

func TestScreenshot(t *testing.T) {
	useMocks(t, loginTree)
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")

	out, err := run(t, "screenshot", "-o", path)
	if err != nil {
		t.Fatalf("screenshot error = %v", err)
	}
	if !strings.Contains(out, "saved "+path) {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("screenshot file = %d bytes, %v", len(data), err)
	}

	if _, err := run(t, "--device", "a", "--device", "b", "screenshot", "-o", path, "--locator", "id: login"); err != nil {
		t.Fatalf("multi-device screenshot error = %v", err)
	}
	for _, name := range []string{"shot-a.png", "shot-b.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestSuffixPath(t *testing.T) {
	tests := []struct{ path, label, want string }{
		{"shot.png", "emulator-5554", "shot-emulator-5554.png"},
		{"out/shot", "a", "out/shot-a"},
		{"s.png", "http://127.0.0.1:9222", "s-http___127.0.0.1_9222.png"},
	}
	for _, tt := range tests {
		if got := suffixPath(tt.path, tt.label); got != tt.want {
			t.Errorf("suffixPath(%q, %q) = %q, want %q", tt.path, tt.label, got, tt.want)
		}
	}
}

func TestTree(t *testing.T) {
	useMocks(t, loginTree)

	out, err := run(t, "tree")
	if err != nil {
		t.Fatalf("tree error = %v", err)
	}
	if !strings.HasPrefix(out, "# 4 nodes") || !strings.Contains(out, "identifier: login") {
		t.Errorf("tree yaml:\n%s", out)
	}

	out, err = run(t, "tree", "--format", "json")
	if err != nil {
		t.Fatalf("tree json error = %v", err)
	}
	if !strings.Contains(out, `"identifier": "delete"`) || !strings.Contains(out, `"enabled": false`) {
		t.Errorf("tree json:\n%s", out)
	}

	if _, err := run(t, "tree", "--format", "xml"); exitCode(err) != 5 {
		t.Errorf("tree xml error = %v, want config error", err)
	}
}

func TestMultipleDevices(t *testing.T) {
	m := useMocks(t, nil)

	out, err := run(t, "--device", "emulator-5554,emulator-5556", "exists", "--locator", "text: Mock Element")
	if err != nil {
		t.Fatalf("exists error = %v", err)
	}
	for _, label := range []string{"# emulator-5554\ntrue\n", "# emulator-5556\ntrue\n"} {
		if !strings.Contains(out, label) {
			t.Errorf("output missing %q:\n%s", label, out)
		}
	}
	if len(m.made) != 2 {
		t.Errorf("opened %d platforms, want 2", len(m.made))
	}
}

func TestOpenFailure(t *testing.T) {
	m := useMocks(t, nil)
	m.fail = core.ConnectionError("adb", errors.New("no server"))
	if _, err := run(t, "find", "--locator", "id: x"); exitCode(err) != 4 {
		t.Errorf("error = %v, want connection error", err)
	}
}

func TestMetricsFlag(t *testing.T) {
	useMocks(t, nil)
	out, err := run(t, "--metrics", "find", "--locator", "text: Mock Element")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bryndza_finds_total") {
		t.Errorf("metrics not printed:\n%s", out)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bryndza.yaml")
	if err := os.WriteFile(path, []byte("platform: android\ntimeout: 5s\nandroid:\n  serial: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRYNDZA_ANDROID_SERIAL", "from-env")

	var got *config.Config
	app := NewApp(io.Discard)
	app.ErrWriter = io.Discard
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	})
	if err := app.Run([]string{"bryndza", "--env-file", "", "-c", path, "-p", "mock", "--timeout", "2s", "probe"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Platform != "mock" || got.Timeout != 2*time.Second || got.Android.Serial != "from-env" {
		t.Errorf("config = platform %q timeout %v serial %q", got.Platform, got.Timeout, got.Android.Serial)
	}
}

func TestEnvFile(t *testing.T) {
	useMocks(t, nil)
	env := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(env, []byte("BRYNDZA_TIMEOUT=bogus\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRYNDZA_TIMEOUT", "")
	os.Unsetenv("BRYNDZA_TIMEOUT")

	var out bytes.Buffer
	app := NewApp(&out)
	app.ErrWriter = io.Discard
	err := app.Run([]string{"bryndza", "-p", "mock", "--env-file", env, "exists", "--locator", "text: Mock Element"})
	if exitCode(err) != 5 {
		t.Errorf("error = %v, want config error from env file", err)
	}
}

func stubDiscovery(t *testing.T) {
	t.Helper()
	prevA, prevN, prevI, prevV, prevS := androidDevices, avdName, iosDevices, avds, simulators
	t.Cleanup(func() { androidDevices, avdName, iosDevices, avds, simulators = prevA, prevN, prevI, prevV, prevS })

	androidDevices = func(context.Context, *config.Config) ([]device.DeviceInfo, error) {
		return []device.DeviceInfo{
			{Serial: "emulator-5554", State: "device", IsEmulator: true},
			{Serial: "R58M123", State: "unauthorized"},
		}, nil
	}
	avdName = func(_ context.Context, _ *config.Config, serial string) (string, error) {
		if serial != "emulator-5554" {
			return "", fmt.Errorf("not an emulator: %s", serial)
		}
		return "Pixel_7_API_34", nil
	}
	iosDevices = func() ([]ios.Device, error) { return nil, errors.New("usbmuxd not running") }
	avds = func(_ context.Context, running map[string]bool) ([]device.AVD, error) {
		return device.ParseAVDs("Pixel_7_API_34\nTablet_API_33\n", running), nil
	}
	simulators = func(context.Context) ([]device.Simulator, error) {
		return nil, errors.New("xcrun: not found")
	}
}

func TestListDevices(t *testing.T) {
	stubDiscovery(t)

	var out bytes.Buffer
	app := NewApp(&out)
	app.ErrWriter = io.Discard
	if err := app.Run([]string{"bryndza", "--env-file", "", "devices"}); err != nil {
		t.Fatalf("devices error = %v", err)
	}
	for _, want := range []string{"serial: emulator-5554", "emulator: true", "ios: []"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "avds:") {
		t.Errorf("virtual devices listed without --virtual:\n%s", out.String())
	}
}

func TestListVirtualDevices(t *testing.T) {
	stubDiscovery(t)

	got := listDevices(context.Background(), config.Default(), true)
	want := []device.AVD{{Name: "Pixel_7_API_34", Running: true}, {Name: "Tablet_API_33"}}
	if len(got.AVDs) != 2 || got.AVDs[0] != want[0] || got.AVDs[1] != want[1] {
		t.Errorf("AVDs = %+v, want %+v", got.AVDs, want)
	}
	if got.Simulators != nil {
		t.Errorf("Simulators = %+v, want none after a failed listing", got.Simulators)
	}
	if len(got.IOS) != 0 || got.IOS == nil {
		t.Errorf("IOS = %#v, want empty list", got.IOS)
	}
}

func TestMetricsServer(t *testing.T) {
	if err := startMetricsServer("127.0.0.1:0"); err != nil {
		t.Fatalf("startMetricsServer() error = %v", err)
	}
	metricsMu.Lock()
	running := metricsServer != nil
	metricsMu.Unlock()
	if !running {
		t.Error("server not recorded")
	}
	stopMetricsServer()
	stopMetricsServer()

	if err := startMetricsServer("not-an-address"); err == nil {
		stopMetricsServer()
		t.Error("startMetricsServer(bad addr) expected error")
	}
}
