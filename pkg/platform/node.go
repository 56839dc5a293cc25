package platform

import (
	"context"
	"strconv"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
)

// Node is one native accessibility node, as handed out by a backend during a walk.
//
// The walker calls Release exactly once on every node it acquires, including
// the root, whatever the outcome of the walk. Backends holding native handles
// (COM pointers, AXUIElementRefs) free them there; snapshot backends no-op.
type Node interface {
	// Attributes reads the normalized projection of this node.
	Attributes() (Projection, error)
	// Children enumerates the direct children in document order.
	Children() ([]Node, error)
	// Release frees the native reference.
	Release()
}

// Projection is the normalized view of a native node that locators match against.
type Projection struct {
	// ID is the backend's own stable identifier (runtime ID, resource id, index). May be empty.
	ID string
	// Class is the role or class name: AXButton, ControlType.Button, android.widget.Button.
	Class string
	// Text is the visible title, label, value, or text content.
	Text string
	// Identifier is the automation or resource id.
	Identifier string
	// Description is the accessibility description / content-desc / label.
	Description string
	// Tag is the DOM tag name on web, empty elsewhere.
	Tag     string
	Bounds  core.Bounds
	Visible bool
	Enabled bool
	// Attributes holds every raw native attribute, for Attribute locators.
	Attributes map[string]string
}

// LeafResolver resolves the locator kinds that cannot be judged from a single
// projection: XPath, CSS selectors, and image templates. A backend supporting
// them resolves the query once against its whole tree and reports membership.
type LeafResolver interface {
	// Resolve returns a membership test for loc. It is called at most once per
	// leaf per walk.
	Resolve(ctx context.Context, loc locator.Locator) (func(Projection) bool, error)
}

// NodePath is the child-index path from the root, used as a fallback identity.
type NodePath []int

func (p NodePath) String() string {
	if len(p) == 0 {
		return "/"
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return "/" + strings.Join(parts, "/")
}

// Attribute looks name up the way the Element snapshot of p will: the
// normalized keys (text, className, resourceId, accessibilityId, tagName)
// take the projection fields, every other key reads the raw native map.
// Attribute locators and Element.Attribute therefore agree on every node.
func (p Projection) Attribute(name string) (string, bool) {
	var v string
	switch name {
	case core.AttrText:
		v = p.Text
	case core.AttrClassName:
		v = p.Class
	case core.AttrResourceID:
		v = p.Identifier
	case core.AttrAccessibilityID:
		v = p.Description
	case core.AttrTagName:
		v = p.Tag
	default:
		raw, ok := p.Attributes[name]
		return raw, ok
	}
	return v, v != ""
}

// ToElement converts a projection into an immutable Element snapshot.
func ToElement(p Projection, path NodePath) *core.Element {
	attrs := make(map[string]string, len(p.Attributes)+5)
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	for _, key := range []string{core.AttrText, core.AttrClassName, core.AttrResourceID, core.AttrAccessibilityID, core.AttrTagName} {
		if v, ok := p.Attribute(key); ok {
			attrs[key] = v
		} else {
			delete(attrs, key)
		}
	}

	id := p.ID
	if id == "" {
		id = p.Class + "@" + path.String()
	}
	return core.NewElement(id, attrs, p.Bounds, p.Visible, p.Enabled)
}

// StaticNode is a Node over an already-parsed snapshot tree. Backends that dump
// their hierarchy in one call (XML page source, JSON tree dumps) build these.
type StaticNode struct {
	Projection Projection
	Kids       []*StaticNode
}

// Attributes implements Node.
func (n *StaticNode) Attributes() (Projection, error) {
	return n.Projection, nil
}

// Children implements Node.
func (n *StaticNode) Children() ([]Node, error) {
	out := make([]Node, len(n.Kids))
	for i, k := range n.Kids {
		out[i] = k
	}
	return out, nil
}

// Release implements Node.
func (n *StaticNode) Release() {}

// Count returns the number of nodes in the tree rooted at n.
func (n *StaticNode) Count() int {
	total := 1
	for _, k := range n.Kids {
		total += k.Count()
	}
	return total
}
