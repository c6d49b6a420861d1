package designformat

import (
	"reflect"
	"strings"
	"testing"
)

func TestParse_ValidJSON(t *testing.T) {
	markup := `{
		"version": "1.0",
		"pageSize": "A4",
		"background": "#ffffff",
		"pages": [
			{"pageNumber": 1, "elements": [
				{"type": "text", "x": 10, "y": 20, "content": "Hello {{agency_name}}", "fontSize": 18, "fontWeight": 700},
				{"type": "image", "x": 0, "y": 0, "width": 595, "height": 300, "src": "{{hero_image_url}}"}
			]}
		]
	}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected successful parse, got nil")
	}
	if d.Version != "1.0" {
		t.Errorf("Expected version 1.0, got %s", d.Version)
	}
	if len(d.Pages) != 1 || len(d.Pages[0].Elements) != 2 {
		t.Fatalf("Expected 1 page with 2 elements, got %+v", d.Pages)
	}
	text := d.Pages[0].Elements[0]
	if text.Content != "Hello {{agency_name}}" {
		t.Errorf("Unexpected content %q", text.Content)
	}
	if text.FontWeight != "700" || !text.FontWeight.Bold() {
		t.Errorf("Expected numeric bold weight, got %q", text.FontWeight)
	}
	img := d.Pages[0].Elements[1]
	if img.Width == nil || *img.Width != 595 {
		t.Errorf("Expected width 595, got %v", img.Width)
	}
}

func TestParse_BareNewlineInsideString(t *testing.T) {
	markup := "{\"pages\":[{\"elements\":[{\"type\":\"text\",\"x\":1,\"y\":2,\"content\":\"Line one\nLine two\r\nLine three\"}]}]}"

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected repaired markup to parse")
	}
	got := d.Pages[0].Elements[0].Content
	want := "Line one\nLine two\r\nLine three"
	if got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
	if d.Pages[0].Elements[0].X != 1 || d.Pages[0].Elements[0].Y != 2 {
		t.Errorf("Repair corrupted neighbouring fields: %+v", d.Pages[0].Elements[0])
	}
}

func TestParse_Relaxed(t *testing.T) {
	markup := `{
		// authored by hand
		pages: [
			{elements: [
				{type: 'text', x: 5, y: 6, content: 'It\'s "quoted"',},
				{type: 'shape', shape: 'polygon', x: 0, y: 0, points: [[0, 0], [595, 0], [0, 200]],},
			],},
		],
	}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected relaxed markup to parse")
	}
	els := d.Pages[0].Elements
	if len(els) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(els))
	}
	if els[0].Content != `It's "quoted"` {
		t.Errorf("Unexpected content %q", els[0].Content)
	}
	if len(els[1].Points) != 3 || els[1].Points[1] != (Point{X: 595, Y: 0}) {
		t.Errorf("Unexpected points %+v", els[1].Points)
	}
}

func TestParse_RelaxedWithBareNewline(t *testing.T) {
	markup := "{pages: [{elements: [{type: 'text', x: 0, y: 0, content: 'a\nb'}]}]}"

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected markup to parse")
	}
	if got := d.Pages[0].Elements[0].Content; got != "a\nb" {
		t.Errorf("content = %q, want %q", got, "a\nb")
	}
}

func TestParse_RequiresPagesArray(t *testing.T) {
	inputs := []string{
		`{"pages": {"elements": []}}`,
		`{"pages": null}`,
		`{"elements": []}`,
		`[]`,
		`"pages"`,
	}

	for _, in := range inputs {
		if d := Parse(in); d != nil {
			t.Errorf("Parse(%q) = %+v, want nil", in, d)
		}
	}
}

func TestParse_EmptyPagesGetsBlankPage(t *testing.T) {
	d := Parse(`{"pages": []}`)
	if d == nil {
		t.Fatal("Expected parse to succeed")
	}
	if len(d.Pages) != 1 {
		t.Errorf("Expected a single blank page, got %d pages", len(d.Pages))
	}
}

func TestParse_MalformedNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"{",
		`{"pages": [`,
		`{"pages": [{"elements": [{"type": "text", "x": "ten"}]}]}`,
		"\x00\x01\x02\xff\xfe",
		"null",
		"{'pages': [}",
		`{"pages":[{"elements":[{"points":[[1]]}]}]}`,
		strings.Repeat("[", 10000),
	}

	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Parse(%q) panicked: %v", in, r)
				}
			}()
			_ = Parse(in)
		}()
	}
}

func TestParseOrDefault(t *testing.T) {
	d := ParseOrDefault("not a design")
	if d == nil || len(d.Pages) != 1 || len(d.Pages[0].Elements) != 0 {
		t.Fatalf("Expected default blank design, got %+v", d)
	}
}

func TestRepairNewlines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"outside strings untouched", "{\n\"a\": 1\n}", "{\n\"a\": 1\n}"},
		{"inside double quotes", "\"a\nb\"", `"a\nb"`},
		{"carriage return", "\"a\rb\"", `"a\rb"`},
		{"inside single quotes", "'a\nb'", `'a\nb'`},
		{"escaped quote keeps string open", "\"a\\\"\nb\"", "\"a\\\"\\nb\""},
		{"other quote char does not close", "\"it's\nok\"", `"it's\nok"`},
		{"already escaped", `"a\nb"`, `"a\nb"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairNewlines(tt.in); got != tt.want {
				t.Errorf("RepairNewlines(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	original := &Design{
		Version:    "1.0",
		PageSize:   CanonicalPageSize,
		Background: "#fafafa",
		Pages: []Page{
			{
				PageNumber: 1,
				Elements: []Element{
					{Type: TypeText, ID: "title", X: 40, Y: 60, Content: "Trip to {{destination_city}}\nDay one", FontSize: 28, FontFamily: "Inter", FontWeight: "700", Color: "#111", LetterSpacing: 0.5, LineHeight: 1.2},
					{Type: TypeImage, X: 0, Y: 0, Width: Float(595), Height: Float(320), Src: "{{hero_image_url}}", Fallback: "{{cover_image_url}}", BorderRadius: 8, Opacity: Float(0.9)},
					{Type: TypeShape, Shape: ShapePolygon, Fill: "#0a3d62", Points: []Point{{0, 700}, {595, 650}, {595, 842}, {0, 842}}},
					{Type: TypeShape, Shape: ShapeRectangle, X: 20, Y: 20, Width: Float(100), Height: Float(40), Stroke: "#000", Shadow: "true", Blur: 2},
					{Type: TypePill, X: 40, Y: 400, Label: "Nights", Value: "{{trip_length}}", Icon: "moon", Colors: &PillColors{BG: "#eee", Text: "#333"}},
				},
			},
			{PageNumber: 2, Elements: []Element{}},
		},
	}

	markup, err := Serialize(original)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	parsed := Parse(markup)
	if parsed == nil {
		t.Fatal("Expected serialized design to parse")
	}
	if !reflect.DeepEqual(original, parsed) {
		t.Errorf("Round-trip mismatch:\noriginal: %+v\nparsed:   %+v", original, parsed)
	}
}

func TestClone_IsDeep(t *testing.T) {
	d := &Design{Pages: []Page{{Elements: []Element{
		{Type: TypeImage, Width: Float(10), Colors: &PillColors{BG: "#fff"}, Points: []Point{{1, 2}}},
	}}}}

	c := d.Clone()
	*c.Pages[0].Elements[0].Width = 99
	c.Pages[0].Elements[0].Colors.BG = "#000"
	c.Pages[0].Elements[0].Points[0].X = 42
	c.Pages[0].Elements[0].X = 7

	orig := d.Pages[0].Elements[0]
	if *orig.Width != 10 || orig.Colors.BG != "#fff" || orig.Points[0].X != 1 || orig.X != 0 {
		t.Errorf("Clone shares state with original: %+v", orig)
	}
}

func TestParse_NumericStrings(t *testing.T) {
	markup := `{"pages":[{"pageNumber":"2","elements":[
		{"type":"text","x":"12.5","y":"30","content":"Hi","fontSize":"14","letterSpacing":"0.5","lineHeight":"1.4"},
		{"type":"image","x":0,"y":0,"width":"120","height":"80","opacity":"0.5","borderRadius":"4"},
		{"type":"shape","shape":"polygon","blur":"3","points":[{"x":"1","y":"2"}]}
	]}]}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected numeric strings to be accepted")
	}
	if d.Pages[0].PageNumber != 2 {
		t.Errorf("pageNumber = %d, want 2", d.Pages[0].PageNumber)
	}

	els := d.Pages[0].Elements
	if len(els) != 3 {
		t.Fatalf("Expected 3 elements, got %d", len(els))
	}
	text := els[0]
	if text.X != 12.5 || text.Y != 30 || text.FontSize != 14 || text.LetterSpacing != 0.5 || text.LineHeight != 1.4 {
		t.Errorf("Text fields not coerced: %+v", text)
	}
	img := els[1]
	if img.Width == nil || *img.Width != 120 || img.Height == nil || *img.Height != 80 {
		t.Errorf("Image size not coerced: %v x %v", img.Width, img.Height)
	}
	if img.Opacity == nil || *img.Opacity != 0.5 || img.BorderRadius != 4 {
		t.Errorf("Image style not coerced: %+v", img)
	}
	shape := els[2]
	if shape.Blur != 3 || len(shape.Points) != 1 || shape.Points[0] != (Point{1, 2}) {
		t.Errorf("Shape fields not coerced: %+v", shape)
	}
}

func TestParse_BadFieldValuesDropped(t *testing.T) {
	markup := `{"version":1,"pages":[{"elements":[
		{"type":"text","x":5,"y":6,"content":"Keep me","fontSize":"large","width":{"v":1},"fontWeight":[700]},
		42,
		{"type":"image","x":1,"y":1,"height":true}
	]}]}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected document with a pages array to parse")
	}
	if d.Version != "1" {
		t.Errorf("version = %q, want %q", d.Version, "1")
	}
	els := d.Pages[0].Elements
	if len(els) != 2 {
		t.Fatalf("Expected the non-object element to be skipped, got %d elements", len(els))
	}
	if els[0].Content != "Keep me" || els[0].X != 5 || els[0].FontSize != 0 || els[0].Width != nil || els[0].FontWeight != "" {
		t.Errorf("Unexpected text element: %+v", els[0])
	}
	if els[1].Type != TypeImage || els[1].Height != nil {
		t.Errorf("Unexpected image element: %+v", els[1])
	}
}

func TestSerialize_KeepsUnknownFields(t *testing.T) {
	markup := `{"meta":{"author":"ops","tags":["a"]},"pages":[{"label":"cover","elements":[
		{"type":"text","x":1,"y":2,"content":"Hi","textAlign":"center","rotation":15,"zIndex":3}
	]}]}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected markup to parse")
	}
	el := d.Pages[0].Elements[0]
	if string(el.Extra["textAlign"]) != `"center"` || string(el.Extra["rotation"]) != "15" {
		t.Errorf("Unknown element fields not kept: %v", el.Extra)
	}

	out, err := Serialize(d)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	again := Parse(out)
	if again == nil {
		t.Fatal("Expected serialized markup to parse")
	}
	if !reflect.DeepEqual(d, again) {
		t.Errorf("Round-trip mismatch:\nfirst:  %+v\nsecond: %+v", d, again)
	}
	for _, key := range []string{`"meta"`, `"label": "cover"`, `"textAlign": "center"`, `"rotation": 15`, `"zIndex": 3`} {
		if !strings.Contains(out, key) {
			t.Errorf("Serialized markup lost %s:\n%s", key, out)
		}
	}
}

func TestSerialize_NonNumericFlex(t *testing.T) {
	markup := `{"pages":[{"elements":[
		{"type":"text","x":0,"y":0,"fontWeight":"NaN","shadow":"+5"},
		{"type":"text","x":0,"y":0,"fontWeight":".5","shadow":"Inf"},
		{"type":"text","x":0,"y":0,"fontWeight":700,"shadow":"1e3"}
	]}]}`

	d := Parse(markup)
	if d == nil {
		t.Fatal("Expected markup to parse")
	}
	out, err := Serialize(d)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	for _, key := range []string{`"fontWeight": "NaN"`, `"shadow": "+5"`, `"fontWeight": ".5"`, `"shadow": "Inf"`, `"fontWeight": 700`, `"shadow": 1e3`} {
		if !strings.Contains(out, key) {
			t.Errorf("Expected %s in:\n%s", key, out)
		}
	}
	if again := Parse(out); again == nil || !reflect.DeepEqual(d, again) {
		t.Errorf("Round-trip mismatch: %+v", again)
	}
}
