package locator

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		loc      Locator
		expected string
	}{
		{ID("login"), "id='login'"},
		{ClassName("Button"), "className='Button'"},
		{Text("OK"), "text='OK'"},
		{PartialText("Welc"), "partialText='Welc'"},
		{AccessibilityID("a11y"), "accessibilityId='a11y'"},
		{XPath("//button"), "xpath='//button'"},
		{CSS("#go"), "cssSelector='#go'"},
		{TagName("input"), "tagName='input'"},
		{Attribute("package", "com.app"), "package='com.app'"},
		{Coordinates(10, 20), "coordinates=(10, 20)"},
		{ImageMatch(ImageFromFile("btn.png")), "image='file:btn.png (threshold: 0.8)'"},
		{And(ID("a"), Text("b")), "AND(id='a', text='b')"},
		{Or(ID("a"), Or()), "OR(id='a', OR())"},
		{Locator{}, "<invalid locator>"},
	}

	for _, tt := range tests {
		if got := tt.loc.Describe(); got != tt.expected {
			t.Errorf("Describe() = %q, want %q", got, tt.expected)
		}
	}
}

func TestCompositeIsImmutable(t *testing.T) {
	subs := []Locator{ID("a"), ID("b")}
	and := And(subs...)

	subs[0] = ID("mutated")
	if and.Locators()[0].Value() != "a" {
		t.Error("And should copy its sublocators")
	}

	got := and.Locators()
	got[1] = ID("mutated")
	if and.Locators()[1].Value() != "b" {
		t.Error("Locators() should return a copy")
	}
}

func TestLeaves(t *testing.T) {
	loc := And(ID("a"), Or(CSS(".x"), XPath("//y")), Text("t"))
	leaves := loc.Leaves()

	kinds := make([]Kind, len(leaves))
	for i, l := range leaves {
		kinds[i] = l.Kind()
	}
	want := []Kind{KindID, KindCSSSelector, KindXPath, KindText}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("Leaves() kinds = %v, want %v", kinds, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		loc     Locator
		wantErr bool
	}{
		{"leaf", ID("x"), false},
		{"empty and", And(), false},
		{"zero", Locator{}, true},
		{"nested zero", And(ID("x"), Or(Locator{})), true},
		{"attribute without name", Attribute("", "v"), true},
		{"image without data", ImageMatch(Image{}), true},
		{"image", ImageMatch(ImageFromBase64("aGk=")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestImageThresholdClamped(t *testing.T) {
	if got := ImageFromFile("a.png").WithThreshold(1.7).Threshold; got != 1 {
		t.Errorf("threshold = %v, want 1", got)
	}
	if got := ImageFromFile("a.png").WithThreshold(-0.2).Threshold; got != 0 {
		t.Errorf("threshold = %v, want 0", got)
	}
	region := core.Bounds{X: 1, Y: 2, Width: 3, Height: 4}
	img := ImageFromFile("a.png").WithRegion(region)
	if img.Region == nil || *img.Region != region {
		t.Errorf("region = %v, want %v", img.Region, region)
	}
}

func TestUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Locator
	}{
		{"scalar is text", `Login`, Text("Login")},
		{"id", `id: login`, ID("login")},
		{"class alias", `class: Button`, ClassName("Button")},
		{"partial", `partialText: Welc`, PartialText("Welc")},
		{"multiple keys become and", "id: login\nclassName: Button", And(ID("login"), ClassName("Button"))},
		{"or", "or:\n  - text: OK\n  - text: Done", Or(Text("OK"), Text("Done"))},
		{"nested", "and:\n  - id: a\n  - or:\n      - Login\n      - a11y: b", And(ID("a"), Or(Text("Login"), AccessibilityID("b")))},
		{"attribute", "attribute:\n  name: package\n  value: com.app", Attribute("package", "com.app")},
		{"coordinates", "coordinates: {x: 10, y: 20}", Coordinates(10, 20)},
		{"empty and", "and: []", And()},
		{"css", `css: "#go"`, CSS("#go")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Locator
			if err := yaml.Unmarshal([]byte(tt.yaml), &got); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			if got.Describe() != tt.want.Describe() {
				t.Errorf("got %s, want %s", got.Describe(), tt.want.Describe())
			}
		})
	}
}

func TestUnmarshalYAML_Image(t *testing.T) {
	var got Locator
	src := "image:\n  file: btn.png\n  threshold: 0.95\n  region: {x: 0, y: 0, width: 100, height: 50}"
	if err := yaml.Unmarshal([]byte(src), &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	img, ok := got.Image()
	if !ok {
		t.Fatal("expected image locator")
	}
	if img.Data.Path != "btn.png" || img.Threshold != 0.95 {
		t.Errorf("image = %+v", img)
	}
	if img.Region == nil || img.Region.Width != 100 {
		t.Errorf("region = %v", img.Region)
	}
}

func TestUnmarshalYAML_Errors(t *testing.T) {
	for _, src := range []string{
		`bogus: x`,
		`- a`,
		`attribute: {value: x}`,
		`image: {threshold: 0.5}`,
		`id: {nested: true}`,
	} {
		var got Locator
		if err := yaml.Unmarshal([]byte(src), &got); err == nil {
			t.Errorf("expected error for %q, got %s", src, got.Describe())
		}
	}
}

func TestParse(t *testing.T) {
	loc, err := Parse("id: login")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if loc.Kind() != KindID || loc.Value() != "login" {
		t.Errorf("Parse = %s", loc)
	}

	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty input")
	}
}
