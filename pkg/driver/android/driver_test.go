package android

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/device"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// fakeADB answers adb invocations by their argument string.
type fakeADB struct {
	mu      sync.Mutex
	outputs map[string][]byte
	calls   []string
}

func (f *fakeADB) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)
	for prefix, out := range f.outputs {
		if strings.HasSuffix(cmd, prefix) {
			return out, nil
		}
	}
	if strings.Contains(cmd, " shell input ") {
		return nil, nil
	}
	return nil, errors.New("unexpected command: " + cmd)
}

func (f *fakeADB) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if i := strings.Index(c, "shell input "); i >= 0 {
			out = append(out, c[i+len("shell input "):])
		}
	}
	return out
}

func newDriver(t *testing.T) (*Driver, *fakeADB) {
	t.Helper()
	shot := image.NewRGBA(image.Rect(0, 0, 1080, 1920))
	var buf bytes.Buffer
	if err := png.Encode(&buf, shot); err != nil {
		t.Fatal(err)
	}
	f := &fakeADB{outputs: map[string][]byte{
		"devices -l":                         []byte("List of devices attached\nemulator-5554\tdevice model:Pixel\n"),
		"get-state":                          []byte("device\n"),
		"exec-out uiautomator dump /dev/tty": []byte(sampleDump),
		"exec-out screencap -p":              buf.Bytes(),
	}}
	d := NewWithADB(device.NewADB("adb", "", 0).WithRunner(f.run))
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return d, f
}

func TestConnectDetectsSerial(t *testing.T) {
	d, f := newDriver(t)
	if d.Serial() != "emulator-5554" {
		t.Errorf("serial = %q", d.Serial())
	}
	if f.calls[1] != "-s emulator-5554 get-state" {
		t.Errorf("state check = %q", f.calls[1])
	}
}

func TestConnectRejectsOfflineDevice(t *testing.T) {
	f := &fakeADB{outputs: map[string][]byte{"get-state": []byte("offline\n")}}
	d := NewWithADB(device.NewADB("adb", "X1", 0).WithRunner(f.run))
	err := d.Connect(context.Background())
	if !errors.Is(err, core.ErrConnection) {
		t.Errorf("Connect() = %v, want connection error", err)
	}
	if d.conn.State() != platform.Disconnected {
		t.Errorf("state = %s", d.conn.State())
	}
}

func TestFindAndClick(t *testing.T) {
	d, f := newDriver(t)
	ctx := context.Background()

	el, err := d.FindElement(ctx, locator.ID("com.app:id/login_btn"))
	if err != nil {
		t.Fatalf("FindElement() error: %v", err)
	}
	if text, _ := el.Text(); text != "Login" {
		t.Errorf("text = %q", text)
	}
	if err := d.Click(ctx, el); err != nil {
		t.Fatalf("Click() error: %v", err)
	}
	if err := d.LongPress(ctx, el, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := d.Swipe(ctx, el, core.SwipeUp, 100); err != nil {
		t.Fatal(err)
	}

	want := []string{"tap 200 240", "swipe 200 240 200 240 2000", "swipe 200 240 200 140 300"}
	got := f.inputs()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("inputs = %q, want %q", got, want)
	}
}

func TestFindElements(t *testing.T) {
	d, _ := newDriver(t)
	buttons, err := d.FindElements(context.Background(), locator.ClassName("android.widget.Button"))
	if err != nil {
		t.Fatal(err)
	}
	if len(buttons) != 2 {
		t.Fatalf("found %d buttons", len(buttons))
	}
	if text, _ := buttons[1].Text(); text != "Sign Up" {
		t.Errorf("second button = %q", text)
	}
}

func TestClickDisabledIsNotInteractable(t *testing.T) {
	d, f := newDriver(t)
	el, err := d.FindElement(context.Background(), locator.Text("Sign Up"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Click(context.Background(), el); !errors.Is(err, core.ErrElementNotInteractable) {
		t.Errorf("Click() = %v", err)
	}
	if len(f.inputs()) != 0 {
		t.Errorf("unexpected input: %v", f.inputs())
	}
}

func TestTypeTextEscapes(t *testing.T) {
	d, f := newDriver(t)
	el, err := d.FindElement(context.Background(), locator.ID("com.app:id/input"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.TypeText(context.Background(), el, "it's a (test)"); err != nil {
		t.Fatal(err)
	}
	got := f.inputs()
	if len(got) != 2 || got[1] != `text it\'s%sa%s\(test\)` {
		t.Errorf("inputs = %q", got)
	}
}

func TestElementScreenshotCrops(t *testing.T) {
	d, _ := newDriver(t)
	el, err := d.FindElement(context.Background(), locator.Text("Login"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := d.ElementScreenshot(context.Background(), el)
	if err != nil {
		t.Fatalf("ElementScreenshot() error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 80 {
		t.Errorf("crop = %v", img.Bounds())
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	d := NewWithADB(device.NewADB("adb", "X1", 0).WithRunner((&fakeADB{}).run))
	if _, err := d.FindElement(context.Background(), locator.Text("Login")); !errors.Is(err, core.ErrSession) {
		t.Errorf("FindElement() = %v", err)
	}
	if _, err := d.Screenshot(context.Background()); !errors.Is(err, core.ErrSession) {
		t.Errorf("Screenshot() = %v", err)
	}
}

func TestScrollIntoView(t *testing.T) {
	d, f := newDriver(t)
	ctx := context.Background()
	el, err := d.FindElement(ctx, locator.Text("Login"))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ScrollIntoView(ctx, el); err != nil {
		t.Fatalf("ScrollIntoView() error: %v", err)
	}
	if len(f.inputs()) != 0 {
		t.Errorf("on-screen element should not scroll: %v", f.inputs())
	}

	f.mu.Lock()
	f.outputs["exec-out uiautomator dump /dev/tty"] = []byte(strings.Replace(sampleDump, "[100,200][300,280]", "[100,2200][300,2280]", 1))
	f.mu.Unlock()
	if err := d.ScrollIntoView(ctx, el); !errors.Is(err, core.ErrElementNotInteractable) {
		t.Fatalf("ScrollIntoView(off screen) = %v", err)
	}
	got := f.inputs()
	if len(got) != platform.MaxScrolls || got[0] != "swipe 540 960 540 320 300" {
		t.Errorf("inputs = %q", got)
	}
}
