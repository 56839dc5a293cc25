package desktop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// JSONNode is the tree schema the native dump scripts print.
type JSONNode struct {
	ID          string            `json:"id"`
	Role        string            `json:"role"`
	Text        string            `json:"text"`
	Identifier  string            `json:"identifier"`
	Description string            `json:"description"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Width       float64           `json:"width"`
	Height      float64           `json:"height"`
	Enabled     *bool             `json:"enabled"`
	Visible     *bool             `json:"visible"`
	Attributes  map[string]string `json:"attributes"`
	Children    children          `json:"children"`
}

// children accepts a list, a single object or null. PowerShell's
// ConvertTo-Json collapses one-element arrays into a bare object.
type children []*JSONNode

func (c *children) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = nil
		return nil
	case len(data) > 0 && data[0] == '{':
		var one JSONNode
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*c = children{&one}
		return nil
	}
	var many []*JSONNode
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = many
	return nil
}

// ParseTree decodes a JSON dump into a node tree.
func ParseTree(data []byte) (*platform.StaticNode, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty tree dump")
	}
	var root JSONNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse tree dump: %w", err)
	}
	return root.toStatic(), nil
}

func (n *JSONNode) toStatic() *platform.StaticNode {
	attrs := make(map[string]string, len(n.Attributes)+1)
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	if n.Role != "" {
		attrs["role"] = n.Role
	}
	s := &platform.StaticNode{Projection: platform.Projection{
		ID:          n.ID,
		Class:       n.Role,
		Text:        n.Text,
		Identifier:  n.Identifier,
		Description: n.Description,
		Bounds: core.Bounds{
			X:      int(n.X),
			Y:      int(n.Y),
			Width:  int(n.Width),
			Height: int(n.Height),
		},
		Visible:    n.Visible == nil || *n.Visible,
		Enabled:    n.Enabled == nil || *n.Enabled,
		Attributes: attrs,
	}}
	for _, c := range n.Children {
		if c != nil {
			s.Kids = append(s.Kids, c.toStatic())
		}
	}
	return s
}
