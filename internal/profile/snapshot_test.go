package profile

import (
	"reflect"
	"testing"
)

func TestParseLabeledFields(t *testing.T) {
	s := Parse("Name: Sarah\nAge: 28\nInterests: Hiking, Dogs, Coffee\nBio: hello")
	if s.Name != "Sarah" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Age != 28 {
		t.Errorf("age = %d", s.Age)
	}
	want := []string{"hiking", "dogs", "coffee"}
	if !reflect.DeepEqual(s.Interests, want) {
		t.Errorf("interests = %v, want %v", s.Interests, want)
	}
}

func TestParseHeaderFallback(t *testing.T) {
	s := Parse("Sarah, 28\nLoves hiking and dogs.")
	if s.Name != "Sarah" || s.Age != 28 {
		t.Errorf("parsed %q/%d, want Sarah/28", s.Name, s.Age)
	}
}

func TestParseNoStructure(t *testing.T) {
	s := Parse("just some bio text with no header")
	if s.Name != "" || s.Age != 0 || s.Interests != nil {
		t.Errorf("unstructured text should yield empty fields: %+v", s)
	}
	if s.Empty() {
		t.Error("snapshot with text is not empty")
	}
}

func TestParseAgeBounds(t *testing.T) {
	if got := parseAge("17"); got != 0 {
		t.Errorf("underage value accepted: %d", got)
	}
	if got := parseAge("105"); got != 0 {
		t.Errorf("implausible value accepted: %d", got)
	}
	if got := parseAge("28 years"); got != 28 {
		t.Errorf("trailing text broke parse: %d", got)
	}
}

func TestEmpty(t *testing.T) {
	if !(Snapshot{Text: "   \n"}).Empty() {
		t.Error("whitespace-only snapshot should be empty")
	}
}

func TestTokens(t *testing.T) {
	set := tokens("Hello, World! Hello again; a")
	for _, w := range []string{"hello", "world", "again"} {
		if _, ok := set[w]; !ok {
			t.Errorf("missing token %q", w)
		}
	}
	if _, ok := set["a"]; ok {
		t.Error("single-char tokens should be dropped")
	}
}
