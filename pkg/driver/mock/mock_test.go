package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

func loginScreen() *Node {
	return &Node{
		Class:  "Window",
		Bounds: core.Bounds{Width: 400, Height: 800},
		Children: []*Node{
			{Class: "TextField", ID: "user", Bounds: core.Bounds{X: 10, Y: 10, Width: 380, Height: 40}},
			{Class: "Button", ID: "login", Text: "Sign in", Bounds: core.Bounds{X: 10, Y: 60, Width: 380, Height: 40}},
			{Class: "Button", Text: "Help", Disabled: true, Bounds: core.Bounds{X: 10, Y: 110, Width: 380, Height: 40}},
		},
	}
}

func connected(t *testing.T, root *Node) *Platform {
	t.Helper()
	p := New(Config{}, root)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return p
}

func TestFindRequiresConnection(t *testing.T) {
	p := New(Config{}, nil)
	_, err := p.FindElement(context.Background(), locator.Text("Mock Element"))
	if !errors.Is(err, core.ErrSession) {
		t.Errorf("err = %v, want ErrSession", err)
	}
}

func TestDefaultTree(t *testing.T) {
	p := connected(t, nil)
	el, err := p.FindElement(context.Background(), locator.ID("mock-element"))
	if err != nil {
		t.Fatalf("FindElement() error: %v", err)
	}
	if el.Center() != (core.Point{X: 200, Y: 225}) {
		t.Errorf("Center() = %v", el.Center())
	}
}

func TestFindAndInteract(t *testing.T) {
	p := connected(t, loginScreen())
	ctx := context.Background()

	buttons, err := p.FindElements(ctx, locator.ClassName("Button"))
	if err != nil {
		t.Fatalf("FindElements() error: %v", err)
	}
	if len(buttons) != 2 {
		t.Fatalf("found %d buttons, want 2", len(buttons))
	}

	if err := p.Click(ctx, buttons[0]); err != nil {
		t.Fatalf("Click() error: %v", err)
	}
	if err := p.Click(ctx, buttons[1]); !errors.Is(err, core.ErrElementNotInteractable) {
		t.Errorf("Click(disabled) = %v, want ErrElementNotInteractable", err)
	}

	field, _ := p.FindElement(ctx, locator.ID("user"))
	if err := p.TypeText(ctx, field, "alice"); err != nil {
		t.Fatalf("TypeText() error: %v", err)
	}
	if err := p.Swipe(ctx, field, core.SwipeUp, 200); err != nil {
		t.Fatalf("Swipe() error: %v", err)
	}

	got := p.Actions()
	want := []Action{
		{Kind: "click", Element: buttons[0].ID()},
		{Kind: "typeText", Element: field.ID(), Arg: "alice"},
		{Kind: "swipe", Element: field.ID(), Arg: "up 200"},
	}
	if len(got) != len(want) {
		t.Fatalf("actions = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	acquired, released := p.NodeBalance()
	if acquired != released {
		t.Errorf("node balance: acquired %d, released %d", acquired, released)
	}
}

func TestInteractionRelocatesAfterScreenChange(t *testing.T) {
	p := connected(t, loginScreen())
	ctx := context.Background()

	btn, err := p.FindElement(ctx, locator.ID("login"))
	if err != nil {
		t.Fatalf("FindElement() error: %v", err)
	}

	p.SetTree(&Node{Class: "Window", Children: []*Node{{Class: "Label", Text: "Welcome"}}})
	if err := p.Click(ctx, btn); !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("Click(stale) = %v, want ErrElementNotFound", err)
	}
}

func TestConnectFailures(t *testing.T) {
	p := New(Config{ConnectFailures: 2}, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := p.Connect(ctx); !errors.Is(err, core.ErrConnection) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if p.ConnectCalls() != 3 {
		t.Errorf("ConnectCalls = %d", p.ConnectCalls())
	}

	if err := p.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if p.State() != platform.Closed {
		t.Errorf("state = %s", p.State())
	}
	if err := p.Connect(ctx); !errors.Is(err, core.ErrSession) {
		t.Errorf("Connect after Disconnect = %v", err)
	}
}

func TestSubtreeFailureContained(t *testing.T) {
	root := loginScreen()
	root.Children[0].AttributesErr = errors.New("stale")
	p := connected(t, root)

	el, err := p.FindElement(context.Background(), locator.Text("Sign in"))
	if err != nil {
		t.Fatalf("FindElement() error: %v", err)
	}
	if id, _ := el.ResourceID(); id != "login" {
		t.Errorf("found %s", el)
	}
}

func TestDelayHonorsContext(t *testing.T) {
	p := New(Config{Delay: time.Second}, nil)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.FindElements(ctx, locator.And()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestScreenshot(t *testing.T) {
	p := connected(t, nil)
	png, err := p.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("Screenshot() error: %v", err)
	}
	if string(png[1:4]) != "PNG" {
		t.Errorf("not a PNG: % x", png[:8])
	}
}

func TestTreeSnapshotBalancesNodes(t *testing.T) {
	p := connected(t, loginScreen())
	tree, err := p.Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree() error: %v", err)
	}
	if tree.Count() != 4 || tree.Kids[1].Projection.Identifier != "login" {
		t.Errorf("tree = %+v", tree)
	}
	if acquired, released := p.NodeBalance(); acquired != released {
		t.Errorf("acquired %d, released %d", acquired, released)
	}
	var _ platform.TreeSource = p
}
