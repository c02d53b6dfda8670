package query

import "testing"

func TestMultiFieldQuery_Parse(t *testing.T) {
	q := Parse("movie @year 1999 @-genre drama (@actor harrison ford)", nil)
	if q.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", q.Len())
	}
	want := "(@* movie) (@year 1999) (@-genre drama) (@actor harrison ford)"
	if got := q.User(); got != want {
		t.Errorf("User() = %q, want %q", got, want)
	}
	if got := q.Engine(); got != "(@* movie) (@year 1999) (@actor harrison ford)" {
		t.Errorf("Engine() = %q", got)
	}
	if got := q.Canonical(); got != "(@* movie) (@actor harrison ford) (@year 1999)" {
		t.Errorf("Canonical() = %q", got)
	}
}

func TestMultiFieldQuery_ParseResets(t *testing.T) {
	q := Parse("@year 1999", nil)
	q.Parse("@genre drama")
	if q.Len() != 1 || q.Term(0).UserField != "genre" {
		t.Errorf("Parse should reset terms, got %q", q.User())
	}
}

func TestMultiFieldQuery_ParseIdempotent(t *testing.T) {
	inputs := []string{
		"movie @year 1999 @-genre drama (@actor harrison ford)",
		"@genre science-fiction @GENRE Drama",
		"(@-actor x) (@* star wars)",
		"",
		"@year 1999 @year 1999 @-year 1999",
	}
	fm := map[string]string{"actor": "actors"}
	for _, in := range inputs {
		q := Parse(in, fm)
		again := Parse(q.User(), fm)
		if again.Canonical() != q.Canonical() {
			t.Errorf("Parse(%q).User() reparsed: canonical %q, want %q", in, again.Canonical(), q.Canonical())
		}
		if again.User() != q.User() {
			t.Errorf("Parse(%q).User() reparsed: user %q, want %q", in, again.User(), q.User())
		}
	}
}

func TestMultiFieldQuery_AddReplaces(t *testing.T) {
	q := New(nil)
	q.AddString("(@year 1999)")
	q.AddString("(@genre drama)")
	q.AddString("(@-year 1999)")
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	last := q.Term(1)
	if last.UserField != "year" || !last.IsExcluded() {
		t.Errorf("last term = %q, want excluded year at the tail", last.User())
	}
	if q.Selected("@year 1999") {
		t.Error("excluded term should not be selected")
	}
	if !q.ContainsString("@year 1999") {
		t.Error("excluded term should still be contained")
	}
}

func TestMultiFieldQuery_Remove(t *testing.T) {
	q := Parse("@year 1999 @genre drama", nil)
	q.RemoveString("@-YEAR 1999")
	if got := q.User(); got != "(@genre drama)" {
		t.Errorf("User() = %q", got)
	}
	q.RemoveString("@actor nobody")
	if q.Len() != 1 {
		t.Error("removing an absent term should be a no-op")
	}
}

func TestMultiFieldQuery_Count(t *testing.T) {
	fm := map[string]string{"actor": "actors"}
	q := Parse("@genre drama @actor harrison ford", fm)
	if got := q.Count("actor"); got != 1 {
		t.Errorf("Count(actor) = %d, want 1", got)
	}
	if got := q.Count("ACTORS"); got != 1 {
		t.Errorf("Count(ACTORS) = %d, want 1", got)
	}
	if got := Parse("@-actor x", fm).Count("actor"); got != 0 {
		t.Errorf("Count on excluded = %d, want 0", got)
	}
}

func TestMultiFieldQuery_EngineNeverEmpty(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		allowEmpty bool
		want       string
	}{
		{"empty", "", false, " "},
		{"all excluded", "@-genre drama", false, " "},
		{"empty allowed", "", true, ""},
		{"empty wildcard", `@* ""`, true, ""},
		{"hyphen", "@genre science-fiction", false, "(@genre science fiction)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Parser{AllowEmpty: tt.allowEmpty}
			if got := p.Parse(tt.in).Engine(); got != tt.want {
				t.Errorf("Engine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMultiFieldQuery_Algebra(t *testing.T) {
	a := Parse("@a x @b y", nil)
	b := Parse("@-b y @c z", nil)
	aUser, bUser := a.User(), b.User()

	tests := []struct {
		name string
		got  *MultiFieldQuery
		want string
	}{
		{"and keeps left status", a.And(b), "(@b y)"},
		{"plus keeps left terms", a.Plus(b), "(@a x) (@b y) (@c z)"},
		{"or is plus", a.Or(b), "(@a x) (@b y) (@c z)"},
		{"plus from the right", b.Plus(a), "(@-b y) (@c z) (@a x)"},
		{"sub", a.Sub(b), "(@a x)"},
	}
	for _, tt := range tests {
		if got := tt.got.User(); got != tt.want {
			t.Errorf("%s: User() = %q, want %q", tt.name, got, tt.want)
		}
	}
	if a.User() != aUser || b.User() != bUser {
		t.Error("algebra must not mutate its operands")
	}
}

func TestMultiFieldQuery_CloneIsDeep(t *testing.T) {
	q := Parse("@genre drama", nil)
	c := q.Clone()
	c.Toggle("@genre drama")
	if q.Term(0).IsExcluded() {
		t.Error("toggling a clone must not affect the original")
	}
}

func TestMultiFieldQuery_QueryToggle(t *testing.T) {
	q := Parse("@genre drama @year 1999", nil)
	r := q.QueryToggleString("@genre drama")
	if got := r.User(); got != "(@-genre drama) (@year 1999)" {
		t.Errorf("toggled User() = %q", got)
	}
	if got := q.User(); got != "(@genre drama) (@year 1999)" {
		t.Errorf("original User() = %q, must be unchanged", got)
	}
	if got := q.QueryToggleString("@actor nobody").User(); got != q.User() {
		t.Errorf("toggling an absent term = %q, want unchanged copy", got)
	}
}

func TestMultiFieldQuery_ToggleInPlace(t *testing.T) {
	q := Parse("@genre drama", nil)
	if !q.ToggleOff("@genre drama") {
		t.Fatal("ToggleOff should find the term")
	}
	if q.Engine() != " " {
		t.Errorf("Engine() = %q, want placeholder", q.Engine())
	}
	if !q.ToggleOn("@GENRE Drama") {
		t.Fatal("ToggleOn should find the term")
	}
	if q.ToggleOn("@genre comedy") {
		t.Error("ToggleOn should report an absent term")
	}
}

func TestMultiFieldQuery_Equal(t *testing.T) {
	a := Parse("@year 1999 @genre drama", nil)
	b := Parse("@GENRE Drama @year 1999", nil)
	if !a.Equal(b) {
		t.Errorf("%q and %q should be equal", a.Canonical(), b.Canonical())
	}
	c := Parse("@year 1999 @genre drama @-actor x", nil)
	if !a.Equal(c) {
		t.Error("excluded terms are not part of the canonical form")
	}
}

func TestMultiFieldQuery_Filter(t *testing.T) {
	q := Parse("@year 1999 @-genre drama @actor ford", nil)
	r := q.Filter(func(term *QueryTerm) bool { return !term.IsExcluded() })
	if got := r.User(); got != "(@year 1999) (@actor ford)" {
		t.Errorf("Filter() = %q", got)
	}
}
