// Package mock provides an in-memory platform for testing without a real device.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// Node is one node of the mock UI tree.
type Node struct {
	Class       string
	Text        string
	ID          string // identifier (resource-id / AutomationId)
	Description string
	Tag         string
	Bounds      core.Bounds
	Hidden      bool
	Disabled    bool
	Attributes  map[string]string
	Children    []*Node

	// Failure injection for walker tests.
	AttributesErr error
	ChildrenErr   error
}

// Config configures mock platform behavior.
type Config struct {
	// Name reported by Name(); defaults to "Mock".
	Name string
	// ConnectFailures makes the first N Connect calls fail with a connection error.
	ConnectFailures int
	// ConnectErr, when set, is returned by every Connect call.
	ConnectErr error
	// DisconnectErr is returned by Disconnect.
	DisconnectErr error
	// Delay adds artificial latency to every find and interaction.
	Delay time.Duration
	// Capabilities to report; zero value reports touch + keyboard + screenshots.
	Capabilities *platform.Capabilities
}

// Action records one interaction for assertions.
type Action struct {
	Kind    string
	Element string
	Arg     string
}

// Platform is an in-memory implementation of platform.Platform.
type Platform struct {
	platform.Searcher

	cfg  Config
	conn platform.Connection

	mu           sync.Mutex
	root         *Node
	connectCalls int
	actions      []Action
	acquired     int
	released     int
	onFind       func(calls int)
	findCalls    int
}

// New creates a mock platform over root. A nil root uses DefaultTree.
func New(cfg Config, root *Node) *Platform {
	if cfg.Name == "" {
		cfg.Name = platform.Mock
	}
	if root == nil {
		root = DefaultTree()
	}
	p := &Platform{cfg: cfg, root: root}
	p.Searcher = platform.Searcher{Root: p.rootNode}
	return p
}

// DefaultTree is a screen with one button, "Mock Element".
func DefaultTree() *Node {
	return &Node{
		Class:  "View",
		Bounds: core.Bounds{X: 0, Y: 0, Width: 1080, Height: 2400},
		Children: []*Node{{
			Class:  "Button",
			ID:     "mock-element",
			Text:   "Mock Element",
			Bounds: core.Bounds{X: 100, Y: 200, Width: 200, Height: 50},
		}},
	}
}

// SetTree replaces the UI tree, as if the screen changed.
func (p *Platform) SetTree(root *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = root
}

// OnFind registers a hook run before each tree walk with the 1-based walk
// count. Tests use it to change the screen between wait attempts.
func (p *Platform) OnFind(fn func(calls int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFind = fn
}

// Actions returns the interactions performed so far.
func (p *Platform) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// ConnectCalls returns how many times Connect was attempted.
func (p *Platform) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// NodeBalance returns nodes acquired and released by tree walks.
func (p *Platform) NodeBalance() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

// State returns the connection state.
func (p *Platform) State() platform.ConnState {
	return p.conn.State()
}

// Connect implements platform.Platform.
func (p *Platform) Connect(ctx context.Context) error {
	return p.conn.Open(ctx, func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.connectCalls++
		if p.cfg.ConnectErr != nil {
			return p.cfg.ConnectErr
		}
		if p.connectCalls <= p.cfg.ConnectFailures {
			return core.ConnectionError(fmt.Sprintf("mock refused attempt %d", p.connectCalls), nil)
		}
		return nil
	})
}

// Disconnect implements platform.Platform.
func (p *Platform) Disconnect(ctx context.Context) error {
	return p.conn.Close(ctx, func(context.Context) error {
		return p.cfg.DisconnectErr
	})
}

// Name implements platform.Platform.
func (p *Platform) Name() string { return p.cfg.Name }

// Capabilities implements platform.Platform.
func (p *Platform) Capabilities() platform.Capabilities {
	if p.cfg.Capabilities != nil {
		return *p.cfg.Capabilities
	}
	return platform.MobileCapabilities()
}

func (p *Platform) sleep(ctx context.Context) error {
	if p.cfg.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(p.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Platform) rootNode(ctx context.Context) (platform.Node, error) {
	if err := p.conn.Require(); err != nil {
		return nil, err
	}
	if err := p.sleep(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.findCalls++
	hook, calls := p.onFind, p.findCalls
	p.mu.Unlock()
	if hook != nil {
		hook(calls)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.root == nil {
		return nil, core.NativeError(p.cfg.Name, fmt.Errorf("no window"))
	}
	p.acquired++
	return &handle{p: p, n: p.root}, nil
}

// handle adapts a Node to platform.Node and counts releases.
type handle struct {
	p *Platform
	n *Node
}

func (h *handle) Attributes() (platform.Projection, error) {
	if h.n.AttributesErr != nil {
		return platform.Projection{}, h.n.AttributesErr
	}
	attrs := make(map[string]string, len(h.n.Attributes))
	for k, v := range h.n.Attributes {
		attrs[k] = v
	}
	return platform.Projection{
		Class:       h.n.Class,
		Text:        h.n.Text,
		Identifier:  h.n.ID,
		Description: h.n.Description,
		Tag:         h.n.Tag,
		Bounds:      h.n.Bounds,
		Visible:     !h.n.Hidden,
		Enabled:     !h.n.Disabled,
		Attributes:  attrs,
	}, nil
}

func (h *handle) Children() ([]platform.Node, error) {
	if h.n.ChildrenErr != nil {
		return nil, h.n.ChildrenErr
	}
	h.p.mu.Lock()
	h.p.acquired += len(h.n.Children)
	h.p.mu.Unlock()

	out := make([]platform.Node, len(h.n.Children))
	for i, c := range h.n.Children {
		out[i] = &handle{p: h.p, n: c}
	}
	return out, nil
}

func (h *handle) Release() {
	h.p.mu.Lock()
	h.p.released++
	h.p.mu.Unlock()
}

// Screenshot returns a 1x1 PNG.
func (p *Platform) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.conn.Require(); err != nil {
		return nil, err
	}
	return onePixelPNG(), nil
}

// ElementScreenshot implements platform.Platform.
func (p *Platform) ElementScreenshot(ctx context.Context, el *core.Element) ([]byte, error) {
	if _, err := p.act(ctx, "screenshot", el, ""); err != nil {
		return nil, err
	}
	return onePixelPNG(), nil
}

// Click implements platform.Platform.
func (p *Platform) Click(ctx context.Context, el *core.Element) error {
	_, err := p.act(ctx, "click", el, "")
	return err
}

// DoubleClick implements platform.Platform.
func (p *Platform) DoubleClick(ctx context.Context, el *core.Element) error {
	_, err := p.act(ctx, "doubleClick", el, "")
	return err
}

// LongPress implements platform.Platform.
func (p *Platform) LongPress(ctx context.Context, el *core.Element, d time.Duration) error {
	_, err := p.act(ctx, "longPress", el, d.String())
	return err
}

// TypeText implements platform.Platform.
func (p *Platform) TypeText(ctx context.Context, el *core.Element, text string) error {
	_, err := p.act(ctx, "typeText", el, text)
	return err
}

// Clear implements platform.Platform.
func (p *Platform) Clear(ctx context.Context, el *core.Element) error {
	_, err := p.act(ctx, "clear", el, "")
	return err
}

// ScrollIntoView implements platform.Platform.
func (p *Platform) ScrollIntoView(ctx context.Context, el *core.Element) error {
	_, err := p.act(ctx, "scrollIntoView", el, "")
	return err
}

// Swipe implements platform.Platform.
func (p *Platform) Swipe(ctx context.Context, el *core.Element, dir core.SwipeDirection, distance float64) error {
	_, err := p.act(ctx, "swipe", el, fmt.Sprintf("%s %.0f", dir, distance))
	return err
}

// act re-resolves el against the current tree and records the interaction.
func (p *Platform) act(ctx context.Context, kind string, el *core.Element, arg string) (*core.Element, error) {
	live, err := p.Relocate(ctx, el)
	if err != nil {
		return nil, err
	}
	if kind != "screenshot" && !live.IsClickable() {
		return nil, core.NotInteractable(fmt.Sprintf("%s is not visible and enabled", live.ID()))
	}
	p.mu.Lock()
	p.actions = append(p.actions, Action{Kind: kind, Element: live.ID(), Arg: arg})
	p.mu.Unlock()
	return live, nil
}

func onePixelPNG() []byte {
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}
}

var _ platform.Platform = (*Platform)(nil)

// Tree snapshots the mock tree.
func (p *Platform) Tree(ctx context.Context) (*platform.StaticNode, error) {
	root, err := p.rootNode(ctx)
	if err != nil {
		return nil, err
	}
	defer root.Release()
	return snapshot(root)
}

func snapshot(n platform.Node) (*platform.StaticNode, error) {
	proj, err := n.Attributes()
	if err != nil {
		return nil, err
	}
	s := &platform.StaticNode{Projection: proj}
	kids, err := n.Children()
	if err != nil {
		return nil, err
	}
	for i, k := range kids {
		child, err := snapshot(k)
		k.Release()
		if err != nil {
			for _, rest := range kids[i+1:] {
				rest.Release()
			}
			return nil, err
		}
		s.Kids = append(s.Kids, child)
	}
	return s, nil
}
