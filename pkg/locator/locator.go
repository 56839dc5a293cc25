// Package locator defines the composable, backend-agnostic element query model.
//
// A Locator is pure data. How a locator matches a native node is a contract
// implemented once by the platform package against a normalized attribute
// projection, so every backend gives And/Or the same meaning.
package locator

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// Kind identifies the variant held by a Locator.
type Kind int

const (
	KindInvalid Kind = iota
	KindID
	KindClassName
	KindText
	KindPartialText
	KindAccessibilityID
	KindXPath
	KindCSSSelector
	KindTagName
	KindAttribute
	KindImage
	KindCoordinates
	KindAnd
	KindOr
)

var kindNames = map[Kind]string{
	KindInvalid:         "invalid",
	KindID:              "id",
	KindClassName:       "className",
	KindText:            "text",
	KindPartialText:     "partialText",
	KindAccessibilityID: "accessibilityId",
	KindXPath:           "xpath",
	KindCSSSelector:     "cssSelector",
	KindTagName:         "tagName",
	KindAttribute:       "attribute",
	KindImage:           "image",
	KindCoordinates:     "coordinates",
	KindAnd:             "and",
	KindOr:              "or",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsComposite reports whether the kind combines sublocators.
func (k Kind) IsComposite() bool {
	return k == KindAnd || k == KindOr
}

// Locator is an immutable element query. The zero value is invalid.
type Locator struct {
	kind  Kind
	value string
	name  string
	image *Image
	point core.Point
	subs  []Locator
}

// ID locates by element identifier (resource-id, AXIdentifier, AutomationId, name).
func ID(id string) Locator { return Locator{kind: KindID, value: id} }

// ClassName locates by class name or role.
func ClassName(name string) Locator { return Locator{kind: KindClassName, value: name} }

// Text locates by exact text content.
func Text(text string) Locator { return Locator{kind: KindText, value: text} }

// PartialText locates by substring of the text content.
func PartialText(text string) Locator { return Locator{kind: KindPartialText, value: text} }

// AccessibilityID locates by accessibility identifier or description.
func AccessibilityID(id string) Locator { return Locator{kind: KindAccessibilityID, value: id} }

// XPath locates by XPath expression. Only backends with a resolver support it.
func XPath(expr string) Locator { return Locator{kind: KindXPath, value: expr} }

// CSS locates by CSS selector. Only backends with a resolver support it.
func CSS(selector string) Locator { return Locator{kind: KindCSSSelector, value: selector} }

// TagName locates by tag name.
func TagName(tag string) Locator { return Locator{kind: KindTagName, value: tag} }

// Attribute locates by an exact raw attribute value.
func Attribute(name, value string) Locator {
	return Locator{kind: KindAttribute, name: name, value: value}
}

// ImageMatch locates by template image.
func ImageMatch(img Image) Locator {
	return Locator{kind: KindImage, image: &img}
}

// Coordinates locates the nodes whose bounds contain the point.
func Coordinates(x, y int) Locator {
	return Locator{kind: KindCoordinates, point: core.Point{X: x, Y: y}}
}

// And matches when every sublocator matches the same node. And() with no
// sublocators matches every node.
func And(locators ...Locator) Locator {
	return Locator{kind: KindAnd, subs: cloneAll(locators)}
}

// Or matches when any sublocator matches. Or() with no sublocators matches nothing.
func Or(locators ...Locator) Locator {
	return Locator{kind: KindOr, subs: cloneAll(locators)}
}

func cloneAll(locators []Locator) []Locator {
	out := make([]Locator, len(locators))
	copy(out, locators)
	return out
}

// Kind returns the locator variant.
func (l Locator) Kind() Kind { return l.kind }

// Value returns the query value of a leaf locator.
func (l Locator) Value() string { return l.value }

// Name returns the attribute name of an Attribute locator.
func (l Locator) Name() string { return l.name }

// Point returns the point of a Coordinates locator.
func (l Locator) Point() core.Point { return l.point }

// Image returns the image query of an Image locator.
func (l Locator) Image() (Image, bool) {
	if l.image == nil {
		return Image{}, false
	}
	return *l.image, true
}

// Locators returns a copy of the sublocators of an And/Or locator.
func (l Locator) Locators() []Locator {
	return cloneAll(l.subs)
}

// IsZero reports whether l is the zero (invalid) locator.
func (l Locator) IsZero() bool {
	return l.kind == KindInvalid
}

// Leaves returns every leaf locator in depth-first order.
func (l Locator) Leaves() []Locator {
	if !l.kind.IsComposite() {
		return []Locator{l}
	}
	var out []Locator
	for _, sub := range l.subs {
		out = append(out, sub.Leaves()...)
	}
	return out
}

// Validate checks that the locator and all its sublocators are well formed.
func (l Locator) Validate() error {
	switch l.kind {
	case KindInvalid:
		return fmt.Errorf("empty locator")
	case KindAnd, KindOr:
		for i, sub := range l.subs {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", l.kind, i, err)
			}
		}
	case KindAttribute:
		if l.name == "" {
			return fmt.Errorf("attribute locator requires a name")
		}
	case KindImage:
		if l.image == nil || (l.image.Data.Path == "" && l.image.Data.Base64 == "") {
			return fmt.Errorf("image locator requires a file or base64 data")
		}
	}
	return nil
}

// Describe returns a human-readable representation for error messages.
func (l Locator) Describe() string {
	switch l.kind {
	case KindID:
		return fmt.Sprintf("id='%s'", l.value)
	case KindClassName:
		return fmt.Sprintf("className='%s'", l.value)
	case KindText:
		return fmt.Sprintf("text='%s'", l.value)
	case KindPartialText:
		return fmt.Sprintf("partialText='%s'", l.value)
	case KindAccessibilityID:
		return fmt.Sprintf("accessibilityId='%s'", l.value)
	case KindXPath:
		return fmt.Sprintf("xpath='%s'", l.value)
	case KindCSSSelector:
		return fmt.Sprintf("cssSelector='%s'", l.value)
	case KindTagName:
		return fmt.Sprintf("tagName='%s'", l.value)
	case KindAttribute:
		return fmt.Sprintf("%s='%s'", l.name, l.value)
	case KindImage:
		if l.image == nil {
			return "image=<none>"
		}
		return fmt.Sprintf("image='%s'", l.image.Describe())
	case KindCoordinates:
		return fmt.Sprintf("coordinates=(%d, %d)", l.point.X, l.point.Y)
	case KindAnd, KindOr:
		parts := make([]string, len(l.subs))
		for i, sub := range l.subs {
			parts[i] = sub.Describe()
		}
		return fmt.Sprintf("%s(%s)", strings.ToUpper(l.kind.String()), strings.Join(parts, ", "))
	}
	return "<invalid locator>"
}

// String implements fmt.Stringer.
func (l Locator) String() string {
	return l.Describe()
}

// ImageData is either a file path or base64-encoded image content.
type ImageData struct {
	Path   string `yaml:"file"`
	Base64 string `yaml:"base64"`
}

// Image is a template-image query.
type Image struct {
	Data      ImageData
	Threshold float64      // similarity in [0,1]
	Region    *core.Bounds // optional search region
}

// DefaultImageThreshold is the similarity used when none is given.
const DefaultImageThreshold = 0.8

// ImageFromFile creates an image query from a file path.
func ImageFromFile(path string) Image {
	return Image{Data: ImageData{Path: path}, Threshold: DefaultImageThreshold}
}

// ImageFromBase64 creates an image query from base64 data.
func ImageFromBase64(data string) Image {
	return Image{Data: ImageData{Base64: data}, Threshold: DefaultImageThreshold}
}

// WithThreshold returns a copy with the threshold clamped to [0,1].
func (i Image) WithThreshold(t float64) Image {
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}
	i.Threshold = t
	return i
}

// WithRegion returns a copy restricted to a search region.
func (i Image) WithRegion(region core.Bounds) Image {
	i.Region = &region
	return i
}

// Describe returns a description of the image query.
func (i Image) Describe() string {
	if i.Data.Path != "" {
		return fmt.Sprintf("file:%s (threshold: %g)", i.Data.Path, i.Threshold)
	}
	return fmt.Sprintf("base64_image (threshold: %g)", i.Threshold)
}
