package query

import "testing"

func TestParseTerm(t *testing.T) {
	fm := NewFieldMap(map[string]string{"Actor": "actors"})
	tests := []struct {
		name       string
		fragment   string
		wantOK     bool
		wantStatus Status
		wantUser   string
		wantEngine string
		wantText   string
	}{
		{"explicit field", "@year 1999", true, Included, "year", "year", "1999"},
		{"plus is implicit", "@+Year  1999 ", true, Included, "year", "year", "1999"},
		{"excluded", "@-genre drama", true, Excluded, "genre", "genre", "drama"},
		{"mapped field", "@actor harrison ford", true, Included, "actor", "actors", "harrison ford"},
		{"engine name maps back", "@ACTORS harrison ford", true, Included, "actor", "actors", "harrison ford"},
		{"bare words", "  star wars ", true, Included, WildcardField, WildcardField, "star wars"},
		{"explicit wildcard", "@* movie", true, Included, WildcardField, WildcardField, "movie"},
		{"whitespace only", "   ", false, "", "", "", ""},
		{"field without text", "@year   ", false, "", "", "", ""},
		{"empty", "", false, "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term, ok := ParseTerm(tt.fragment, fm)
			if ok != tt.wantOK {
				t.Fatalf("ParseTerm(%q) ok = %v, want %v", tt.fragment, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if term.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", term.Status, tt.wantStatus)
			}
			if term.UserField != tt.wantUser {
				t.Errorf("UserField = %q, want %q", term.UserField, tt.wantUser)
			}
			if term.EngineField != tt.wantEngine {
				t.Errorf("EngineField = %q, want %q", term.EngineField, tt.wantEngine)
			}
			if term.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", term.Text, tt.wantText)
			}
		})
	}
}

func TestQueryTerm_Render(t *testing.T) {
	fm := NewFieldMap(map[string]string{"genre": "genres"})
	term, ok := ParseTerm("@genre Science-Fiction", fm)
	if !ok {
		t.Fatal("expected a term")
	}
	if got := term.User(); got != "(@genre Science-Fiction)" {
		t.Errorf("User() = %q", got)
	}
	if got := term.Engine(); got != "(@genres Science Fiction)" {
		t.Errorf("Engine() = %q", got)
	}
	if got := term.Canonical(); got != "(@genres science fiction)" {
		t.Errorf("Canonical() = %q", got)
	}

	term.ToggleOff()
	if got := term.User(); got != "(@-genre Science-Fiction)" {
		t.Errorf("User() excluded = %q", got)
	}
	if got := term.Engine(); got != "" {
		t.Errorf("Engine() excluded = %q, want empty", got)
	}
}

func TestQueryTerm_IdentityIgnoresStatus(t *testing.T) {
	a, _ := ParseTerm("@year 1999", nil)
	b, _ := ParseTerm("@-YEAR 1999", nil)
	c, _ := ParseTerm("@year 2000", nil)
	if !a.Equal(b) {
		t.Error("terms differing only by status and field case should be equal")
	}
	if a.Key() != b.Key() {
		t.Errorf("Key() differs: %q vs %q", a.Key(), b.Key())
	}
	if a.Equal(c) {
		t.Error("terms with different text should differ")
	}
	d, _ := ParseTerm("@actor Harrison Ford", nil)
	e, _ := ParseTerm("@actor harrison ford", nil)
	if !d.Equal(e) {
		t.Error("text comparison should be case-insensitive")
	}
}

func TestQueryTerm_Toggle(t *testing.T) {
	term, _ := ParseTerm("@genre drama", nil)
	term.Toggle()
	if !term.IsExcluded() {
		t.Error("Toggle should exclude an included term")
	}
	term.Toggle()
	if term.IsExcluded() {
		t.Error("Toggle should include an excluded term")
	}
	term.ToggleOn()
	if term.IsExcluded() {
		t.Error("ToggleOn should keep the term included")
	}
}

func TestFieldMap_UserIsDeterministic(t *testing.T) {
	fm := NewFieldMap(map[string]string{"b": "x", "a": "x", "c": "x"})
	for i := 0; i < 20; i++ {
		if got := fm.User("x"); got != "a" {
			t.Fatalf("User(x) = %q, want a", got)
		}
	}
	if got := fm.User("y"); got != "y" {
		t.Errorf("User(y) = %q, want identity", got)
	}
}
