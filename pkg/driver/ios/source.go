package ios

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/platform"
)

// ParseSource parses WDA's /source XML into a node tree. The root is the
// AppiumAUT wrapper when present, otherwise the application element.
//
// Projection mapping: type is the class, name (the accessibility identifier)
// is both the identifier and the accessibility id, label is the text with
// value as fallback.
func ParseSource(data string) (*platform.StaticNode, error) {
	dec := xml.NewDecoder(strings.NewReader(data))

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
			return nil, fmt.Errorf("parse source: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			root, err := parse(se)
			if err != nil {
				return nil, fmt.Errorf("parse source: %w", err)
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

	class := attrs["type"]
	if class == "" {
		class = se.Name.Local
	}
	text := attrs["label"]
	if text == "" {
		text = attrs["value"]
	}
	return platform.Projection{
		Class:       class,
		Text:        text,
		Identifier:  attrs["name"],
		Description: attrs["name"],
		Bounds: core.Bounds{
			X:      atoi(attrs["x"]),
			Y:      atoi(attrs["y"]),
			Width:  atoi(attrs["width"]),
			Height: atoi(attrs["height"]),
		},
		Visible:    attrs["visible"] != "false",
		Enabled:    attrs["enabled"] != "false",
		Attributes: attrs,
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	// WDA reports fractional points on some devices.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
