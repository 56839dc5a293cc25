package android

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// ParseHierarchy parses a `uiautomator dump` into a node tree rooted at the
// <hierarchy> element. Leading or trailing non-XML output (the "UI hierchary
// dumped to" banner) is ignored.
//
// Both dump formats are accepted: <node class="..."> elements, and the older
// format where the element tag is the class name.
func ParseHierarchy(data []byte) (*platform.StaticNode, error) {
	start := bytes.Index(data, []byte("<hierarchy"))
	if start < 0 {
		return nil, fmt.Errorf("invalid page source: no hierarchy element found")
	}
	data = data[start:]
	if end := bytes.LastIndex(data, []byte("</hierarchy>")); end >= 0 {
		data = data[:end+len("</hierarchy>")]
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var parse func(se xml.StartElement) (*platform.StaticNode, error)
	parse = func(se xml.StartElement) (*platform.StaticNode, error) {
		n := &platform.StaticNode{Projection: project(se)}
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				child, err := parse(t)
				if err != nil {
					return nil, err
				}
				n.Kids = append(n.Kids, child)
			case xml.EndElement:
				return n, nil
			}
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse hierarchy: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root, err := parse(se)
			if err != nil {
				return nil, fmt.Errorf("parse hierarchy: %w", err)
			}
			return root, nil
		}
	}
}

func project(se xml.StartElement) platform.Projection {
	attrs := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		attrs[a.Name.Local] = a.Value
	}

	class := attrs["class"]
	if class == "" {
		class = se.Name.Local
	}
	return platform.Projection{
		Class:       class,
		Text:        attrs["text"],
		Identifier:  attrs["resource-id"],
		Description: attrs["content-desc"],
		Bounds:      parseBounds(attrs["bounds"]),
		Visible:     attrs["visible-to-user"] != "false" && attrs["displayed"] != "false",
		Enabled:     attrs["enabled"] != "false",
		Attributes:  attrs,
	}
}

// parseBounds parses "[x1,y1][x2,y2]".
func parseBounds(s string) core.Bounds {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return core.Bounds{}
		}
		v[i] = n
	}
	return core.Bounds{X: v[0], Y: v[1], Width: v[2] - v[0], Height: v[3] - v[1]}
}
