package platform

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// fakeNode is a test node that counts releases and can fail on demand.
type fakeNode struct {
	proj     Projection
	kids     []*fakeNode
	attrErr  error
	kidsErr  error
	released *map[string]int
}

func (n *fakeNode) Attributes() (Projection, error) {
	if n.attrErr != nil {
		return Projection{}, n.attrErr
	}
	return n.proj, nil
}

func (n *fakeNode) Children() ([]Node, error) {
	if n.kidsErr != nil {
		return nil, n.kidsErr
	}
	out := make([]Node, len(n.kids))
	for i, k := range n.kids {
		out[i] = k
	}
	return out, nil
}

func (n *fakeNode) Release() {
	(*n.released)[n.proj.ID]++
}

type tree struct {
	root     *fakeNode
	released map[string]int
	all      []*fakeNode
}

func node(id, class, text string, kids ...*fakeNode) *fakeNode {
	return &fakeNode{
		proj: Projection{ID: id, Class: class, Text: text, Visible: true, Enabled: true,
			Bounds: core.Bounds{X: 0, Y: 0, Width: 10, Height: 10}},
		kids: kids,
	}
}

func newTree(root *fakeNode) *tree {
	t := &tree{root: root, released: map[string]int{}}
	var bind func(n *fakeNode)
	bind = func(n *fakeNode) {
		n.released = &t.released
		t.all = append(t.all, n)
		for _, k := range n.kids {
			bind(k)
		}
	}
	bind(root)
	return t
}

func (t *tree) rootFunc(context.Context) (Node, error) { return t.root, nil }

// sample:
//
//	root
//	├── a (Button "OK")
//	│   └── a1 (Label "OK")
//	├── b (Button "Cancel")
//	└── c (Panel)
//	    └── c1 (Button "OK")
func sample() *tree {
	return newTree(node("root", "Window", "",
		node("a", "Button", "OK", node("a1", "Label", "OK")),
		node("b", "Button", "Cancel"),
		node("c", "Panel", "", node("c1", "Button", "OK")),
	))
}

func ids(els []*core.Element) []string {
	out := make([]string, len(els))
	for i, e := range els {
		out[i] = e.ID()
	}
	return out
}

func assertReleasedOnce(t *testing.T, tr *tree, visited ...string) {
	t.Helper()
	for id, n := range tr.released {
		if n != 1 {
			t.Errorf("node %s released %d times, want 1", id, n)
		}
	}
	for _, id := range visited {
		if tr.released[id] != 1 {
			t.Errorf("node %s not released", id)
		}
	}
}

func TestFindAll_PreOrder(t *testing.T) {
	tests := []struct {
		name string
		loc  locator.Locator
		want []string
	}{
		{"text", locator.Text("OK"), []string{"a", "a1", "c1"}},
		{"class and text", locator.And(locator.ClassName("Button"), locator.Text("OK")), []string{"a", "c1"}},
		{"or", locator.Or(locator.Text("Cancel"), locator.ClassName("Panel")), []string{"b", "c"}},
		{"partial", locator.PartialText("Canc"), []string{"b"}},
		{"empty and matches all", locator.And(), []string{"root", "a", "a1", "b", "c", "c1"}},
		{"empty or matches none", locator.Or(), []string{}},
		{"no match", locator.Text("missing"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sample()
			got, err := FindAll(context.Background(), tr.rootFunc, tt.loc, WalkOptions{})
			if err != nil {
				t.Fatalf("FindAll error: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("FindAll = %v, want %v", ids(got), tt.want)
			}
			assertReleasedOnce(t, tr, "root", "a", "a1", "b", "c", "c1")
		})
	}
}

func TestFindFirst_StopsAtFirstMatch(t *testing.T) {
	tr := sample()
	el, err := FindFirst(context.Background(), tr.rootFunc, locator.Text("OK"), WalkOptions{})
	if err != nil {
		t.Fatalf("FindFirst error: %v", err)
	}
	if el.ID() != "a" {
		t.Errorf("FindFirst = %s, want a", el.ID())
	}
	// a1 is acquired only after a's children are read, which never happens.
	if _, seen := tr.released["a1"]; seen {
		t.Error("a1 should not have been visited")
	}
	// b and c are acquired as root's children and must be released unvisited.
	assertReleasedOnce(t, tr, "root", "a", "b", "c")
	if _, seen := tr.released["c1"]; seen {
		t.Error("c1 should not have been acquired")
	}
}

func TestFindFirst_NotFound(t *testing.T) {
	tr := sample()
	_, err := FindFirst(context.Background(), tr.rootFunc, locator.ID("nope"), WalkOptions{})
	if !errors.Is(err, core.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
	assertReleasedOnce(t, tr, "root", "a", "a1", "b", "c", "c1")
}

func TestWalk_SubtreeFailureContained(t *testing.T) {
	tr := sample()
	tr.all[1].kidsErr = errors.New("stale subtree") // a
	tr.all[4].attrErr = errors.New("access denied") // c

	got, err := FindAll(context.Background(), tr.rootFunc, locator.Text("OK"), WalkOptions{})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	// a1 is unreachable and c's subtree is skipped entirely.
	if !reflect.DeepEqual(ids(got), []string{"a"}) {
		t.Errorf("FindAll = %v, want [a]", ids(got))
	}
	assertReleasedOnce(t, tr, "root", "a", "b", "c")
}

func TestWalk_RootFailureIsFatal(t *testing.T) {
	rootErr := errors.New("no desktop")
	_, err := FindAll(context.Background(), func(context.Context) (Node, error) {
		return nil, rootErr
	}, locator.Text("x"), WalkOptions{})
	if !errors.Is(err, rootErr) {
		t.Errorf("err = %v, want %v", err, rootErr)
	}

	tr := sample()
	tr.root.kidsErr = errors.New("root children")
	_, err = FindAll(context.Background(), tr.rootFunc, locator.Text("OK"), WalkOptions{})
	if err == nil {
		t.Fatal("expected root children failure to propagate")
	}
	assertReleasedOnce(t, tr, "root")
}

func TestWalk_MatcherErrorPropagates(t *testing.T) {
	tr := sample()
	_, err := FindAll(context.Background(), tr.rootFunc, locator.XPath("//Button"), WalkOptions{})
	if !errors.Is(err, core.ErrPlatformNotSupported) {
		t.Fatalf("err = %v, want ErrPlatformNotSupported", err)
	}
	assertReleasedOnce(t, tr, "root")
}

type classResolver struct{ calls int }

func (r *classResolver) Resolve(_ context.Context, loc locator.Locator) (func(Projection) bool, error) {
	r.calls++
	want := loc.Value()[2:] // "//Button" -> "Button"
	return func(p Projection) bool { return p.Class == want }, nil
}

func TestWalk_ResolverCalledOncePerWalk(t *testing.T) {
	tr := sample()
	r := &classResolver{}
	got, err := FindAll(context.Background(), tr.rootFunc, locator.XPath("//Button"), WalkOptions{Resolver: r})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"a", "b", "c1"}) {
		t.Errorf("FindAll = %v", ids(got))
	}
	if r.calls != 1 {
		t.Errorf("resolver calls = %d, want 1", r.calls)
	}
}

// imageResolver matches the class named by the image's base64 payload.
type imageResolver struct{ calls int }

func (r *imageResolver) Resolve(_ context.Context, loc locator.Locator) (func(Projection) bool, error) {
	r.calls++
	img, _ := loc.Image()
	want := img.Data.Base64
	return func(p Projection) bool { return p.Class == want }, nil
}

func TestWalk_ImageLeavesCachedSeparately(t *testing.T) {
	tr := sample()
	r := &imageResolver{}
	loc := locator.Or(
		locator.ImageMatch(locator.ImageFromBase64("Label")),
		locator.ImageMatch(locator.ImageFromBase64("Panel")),
		locator.ImageMatch(locator.ImageFromBase64("Panel").WithRegion(core.Bounds{Width: 5, Height: 5})),
	)
	got, err := FindAll(context.Background(), tr.rootFunc, loc, WalkOptions{Resolver: r})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"a1", "c"}) {
		t.Errorf("FindAll = %v, want [a1 c]", ids(got))
	}
	if r.calls != 3 {
		t.Errorf("resolver calls = %d, want one per distinct image", r.calls)
	}
}

func TestWalk_Options(t *testing.T) {
	tr := sample()
	got, err := FindAll(context.Background(), tr.rootFunc, locator.Text("OK"), WalkOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"a"}) {
		t.Errorf("MaxDepth=1: %v, want [a]", ids(got))
	}
	assertReleasedOnce(t, tr, "root", "a", "b", "c")

	tr = sample()
	tr.all[1].proj.Visible = false
	got, err = FindAll(context.Background(), tr.rootFunc, locator.Text("OK"), WalkOptions{VisibleOnly: true})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"a1", "c1"}) {
		t.Errorf("VisibleOnly: %v, want [a1 c1]", ids(got))
	}
}

func TestWalk_ContextCancelled(t *testing.T) {
	tr := sample()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FindAll(ctx, tr.rootFunc, locator.Text("OK"), WalkOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWalk_InvalidLocator(t *testing.T) {
	tr := sample()
	_, err := FindAll(context.Background(), tr.rootFunc, locator.Locator{}, WalkOptions{})
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestToElement_FallbackID(t *testing.T) {
	el := ToElement(Projection{Class: "Button", Text: "OK", Identifier: "btn"}, NodePath{0, 2})
	if el.ID() != "Button@/0/2" {
		t.Errorf("ID = %q", el.ID())
	}
	if v, _ := el.ResourceID(); v != "btn" {
		t.Errorf("ResourceID = %q", v)
	}
	if v, _ := el.Text(); v != "OK" {
		t.Errorf("Text = %q", v)
	}
	if _, ok := el.Attribute(core.AttrTagName); ok {
		t.Error("empty tag should not be recorded")
	}
}

func TestProjectionAttributeMatchesElement(t *testing.T) {
	p := Projection{
		Class: "ControlType.Button",
		Text:  "OK",
		Attributes: map[string]string{
			"className":   "Button",
			"resourceId":  "stale",
			"frameworkId": "Win32",
		},
	}
	el := ToElement(p, NodePath{0})
	for _, name := range []string{core.AttrClassName, core.AttrText, core.AttrResourceID, "frameworkId", "missing"} {
		pv, pok := p.Attribute(name)
		ev, eok := el.Attribute(name)
		if pv != ev || pok != eok {
			t.Errorf("%s: projection = %q,%v element = %q,%v", name, pv, pok, ev, eok)
		}
		ok, err := Match(locator.Attribute(name, pv), p)
		if err != nil || ok != pok {
			t.Errorf("Match(attribute %s=%q) = %v, %v; want %v", name, pv, ok, err, pok)
		}
	}
	if ok, _ := Match(locator.Attribute("className", "Button"), p); ok {
		t.Error("raw className shadowed by the normalized class still matched")
	}
}
