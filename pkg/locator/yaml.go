package locator

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// imageRaw is the YAML shape of an image query.
type imageRaw struct {
	File      string       `yaml:"file"`
	Base64    string       `yaml:"base64"`
	Threshold *float64     `yaml:"threshold"`
	Region    *core.Bounds `yaml:"region"`
}

type attributeRaw struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// UnmarshalYAML allows Locator to be unmarshaled from a string or a mapping.
//
//	"Login"                              -> text
//	{id: login}                          -> id
//	{id: login, className: Button}       -> AND of both, in key order
//	{or: [{text: OK}, {text: Done}]}     -> OR
//	{attribute: {name: package, value: com.app}}
//	{coordinates: {x: 10, y: 20}}
//	{image: {file: btn.png, threshold: 0.9}}
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = Text(node.Value)
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: locator must be a string or a mapping", node.Line)
	}
	if len(node.Content) == 0 {
		return fmt.Errorf("line %d: empty locator", node.Line)
	}

	var parts []Locator
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		part, err := decodeField(key.Value, val)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", key.Line, key.Value, err)
		}
		parts = append(parts, part)
	}

	if len(parts) == 1 {
		*l = parts[0]
		return nil
	}
	*l = And(parts...)
	return nil
}

func decodeField(key string, val *yaml.Node) (Locator, error) {
	switch key {
	case "and", "or":
		var subs []Locator
		if err := val.Decode(&subs); err != nil {
			return Locator{}, err
		}
		if key == "and" {
			return And(subs...), nil
		}
		return Or(subs...), nil
	case "attribute":
		var raw attributeRaw
		if err := val.Decode(&raw); err != nil {
			return Locator{}, err
		}
		if raw.Name == "" {
			return Locator{}, fmt.Errorf("attribute name is required")
		}
		return Attribute(raw.Name, raw.Value), nil
	case "coordinates":
		var p core.Point
		if err := val.Decode(&p); err != nil {
			return Locator{}, err
		}
		return Coordinates(p.X, p.Y), nil
	case "image":
		return decodeImage(val)
	}

	if val.Kind != yaml.ScalarNode {
		return Locator{}, fmt.Errorf("expected a string value")
	}
	switch strings.ToLower(key) {
	case "id":
		return ID(val.Value), nil
	case "classname", "class":
		return ClassName(val.Value), nil
	case "text":
		return Text(val.Value), nil
	case "partialtext", "contains":
		return PartialText(val.Value), nil
	case "accessibilityid", "a11y":
		return AccessibilityID(val.Value), nil
	case "xpath":
		return XPath(val.Value), nil
	case "css", "cssselector":
		return CSS(val.Value), nil
	case "tagname", "tag":
		return TagName(val.Value), nil
	}
	return Locator{}, fmt.Errorf("unknown locator field")
}

func decodeImage(val *yaml.Node) (Locator, error) {
	var img Image
	if val.Kind == yaml.ScalarNode {
		img = ImageFromFile(val.Value)
		return ImageMatch(img), nil
	}

	var raw imageRaw
	if err := val.Decode(&raw); err != nil {
		return Locator{}, err
	}
	switch {
	case raw.File != "":
		img = ImageFromFile(raw.File)
	case raw.Base64 != "":
		img = ImageFromBase64(raw.Base64)
	default:
		return Locator{}, fmt.Errorf("image requires file or base64")
	}
	if raw.Threshold != nil {
		img = img.WithThreshold(*raw.Threshold)
	}
	if raw.Region != nil {
		img = img.WithRegion(*raw.Region)
	}
	return ImageMatch(img), nil
}

// Parse decodes a locator from YAML text, e.g. a CLI flag value like "id: login".
func Parse(s string) (Locator, error) {
	var l Locator
	if err := yaml.Unmarshal([]byte(s), &l); err != nil {
		return Locator{}, err
	}
	if err := l.Validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}
