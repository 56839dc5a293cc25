package web

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// snapshotJS serializes the document into domNode JSON and keeps the element
// list on window so later queries can map elements back to snapshot indices.
const snapshotJS = `(() => {
  const nodes = [];
  const visit = (el) => {
    const i = nodes.length;
    nodes.push(el);
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    const attrs = {};
    for (const a of el.attributes) attrs[a.name] = a.value;
    let text = "";
    if (el.tagName === "INPUT" || el.tagName === "TEXTAREA" || el.tagName === "SELECT") {
      text = el.value || "";
    } else {
      for (const c of el.childNodes) if (c.nodeType === 3) text += c.nodeValue;
      text = text.replace(/\s+/g, " ").trim();
    }
    return {
      i: i,
      tag: el.tagName.toLowerCase(),
      text: text,
      id: el.id || "",
      cls: el.getAttribute("class") || "",
      label: el.getAttribute("aria-label") || el.getAttribute("title") || el.getAttribute("alt") || "",
      x: r.left, y: r.top, w: r.width, h: r.height,
      visible: st.display !== "none" && st.visibility !== "hidden" && r.width > 0 && r.height > 0,
      enabled: !el.disabled,
      attrs: attrs,
      kids: Array.from(el.children).map(visit)
    };
  };
  const root = visit(document.documentElement);
  window.__bryndzaNodes = nodes;
  return JSON.stringify(root);
})()`

// queryJS returns the snapshot indices of the elements a CSS selector or
// XPath expression selects, in document order.
const queryJS = `((kind, q) => {
  const nodes = window.__bryndzaNodes || [];
  let hits = [];
  if (kind === "css") {
    hits = Array.from(document.querySelectorAll(q));
  } else {
    const r = document.evaluate(q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let k = 0; k < r.snapshotLength; k++) hits.push(r.snapshotItem(k));
  }
  return JSON.stringify(hits.map((h) => nodes.indexOf(h)).filter((i) => i >= 0));
})(%s, %s)`

// nodeCallJS runs a function body with el bound to a snapshot element.
const nodeCallJS = `((i) => {
  const el = (window.__bryndzaNodes || [])[i];
  if (!el || !el.isConnected) return false;
  %s
  return true;
})(%d)`

type domNode struct {
	Index   int               `json:"i"`
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	ID      string            `json:"id"`
	Class   string            `json:"cls"`
	Label   string            `json:"label"`
	X       float64           `json:"x"`
	Y       float64           `json:"y"`
	W       float64           `json:"w"`
	H       float64           `json:"h"`
	Visible bool              `json:"visible"`
	Enabled bool              `json:"enabled"`
	Attrs   map[string]string `json:"attrs"`
	Kids    []*domNode        `json:"kids"`
}

// ParseDOM decodes a snapshot produced by snapshotJS.
func ParseDOM(data string) (*platform.StaticNode, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("empty DOM snapshot")
	}
	var root domNode
	if err := json.Unmarshal([]byte(data), &root); err != nil {
		return nil, fmt.Errorf("parse DOM snapshot: %w", err)
	}
	return root.toStatic(), nil
}

func (n *domNode) toStatic() *platform.StaticNode {
	s := &platform.StaticNode{Projection: platform.Projection{
		ID:          nodeID(n.Index),
		Class:       n.Class,
		Text:        n.Text,
		Identifier:  n.ID,
		Description: n.Label,
		Tag:         n.Tag,
		Bounds: core.Bounds{
			X:      int(n.X),
			Y:      int(n.Y),
			Width:  int(n.W),
			Height: int(n.H),
		},
		Visible:    n.Visible,
		Enabled:    n.Enabled,
		Attributes: n.Attrs,
	}}
	for _, k := range n.Kids {
		if k != nil {
			s.Kids = append(s.Kids, k.toStatic())
		}
	}
	return s
}

func nodeID(i int) string { return "node-" + strconv.Itoa(i) }

// nodeIndex recovers the snapshot index from an element ID.
func nodeIndex(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "node-")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func queryScript(kind, q string) string {
	k, _ := json.Marshal(kind)
	v, _ := json.Marshal(q)
	return fmt.Sprintf(queryJS, k, v)
}

func nodeCall(i int, body string) string {
	return fmt.Sprintf(nodeCallJS, body, i)
}
