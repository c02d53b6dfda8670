package query

import (
	"net/url"
	"testing"
)

func TestToPrettyURL(t *testing.T) {
	q := Parse("movie @year 1999 @-genre drama (@actor harrison ford)", nil)
	tests := []struct {
		name string
		opts URLOptions
		want string
	}{
		{"plain", URLOptions{}, "movie/actor=harrison+ford/genre=*drama/year=1999/"},
		{"keep order", URLOptions{KeepOrder: true}, "movie/actor=harrison+ford/genre=*drama/year=1999/?ot=0321"},
		{"root", URLOptions{Root: "/search/"}, "/search/movie/actor=harrison+ford/genre=*drama/year=1999/"},
		{"extra params", URLOptions{Params: url.Values{"page": {"2"}}, KeepOrder: true}, "movie/actor=harrison+ford/genre=*drama/year=1999/?ot=0321&page=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.ToPrettyURL(tt.opts); got != tt.want {
				t.Errorf("ToPrettyURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToPrettyURL_MultiValueAndEscaping(t *testing.T) {
	q := Parse("@genre drama @genre film-noir @title 8½ & more", nil)
	want := "genre=drama|film-noir/title=8%C2%BD+%26+more/"
	if got := q.ToPrettyURL(URLOptions{}); got != want {
		t.Errorf("ToPrettyURL() = %q, want %q", got, want)
	}
}

func TestToPrettyURL_SingleTermHasNoOrder(t *testing.T) {
	q := Parse("@year 1999", nil)
	if got := q.ToPrettyURL(URLOptions{KeepOrder: true}); got != "year=1999/" {
		t.Errorf("ToPrettyURL() = %q, want no ot parameter", got)
	}
}

func TestFromPrettyURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		root  string
		order string
		want  string
	}{
		{"sorted", "actor=harrison+ford/genre=*drama/year=1999/", "", "",
			"(@actor harrison ford) (@-genre drama) (@year 1999)"},
		{"ot parameter", "movie/actor=harrison+ford/genre=*drama/year=1999/?ot=0321", "", "",
			"(@* movie) (@year 1999) (@-genre drama) (@actor harrison ford)"},
		{"explicit order wins", "actor=ford/year=1999/?ot=01", "", "10",
			"(@year 1999) (@actor ford)"},
		{"root skipped", "/search/genre=drama|*comedy/", "/search/", "",
			"(@genre drama) (@-genre comedy)"},
		{"absolute url", "http://example.com/search/year=1999/#top", "/search/", "",
			"(@year 1999)"},
		{"escaped", "title=8%C2%BD+%26+more/", "", "",
			"(@title 8½ & more)"},
		{"excluded wildcard", "*movie/", "", "", "(@-* movie)"},
		{"empty", "/", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPrettyURL(tt.url, tt.root, tt.order); got != tt.want {
				t.Errorf("FromPrettyURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestPrettyURL_RoundTrip(t *testing.T) {
	inputs := []string{
		"@year 1999 @-genre drama (@actor harrison ford)",
		"movie @year 1999 @-genre drama (@actor harrison ford)",
		"@genre drama @genre film-noir @-year 1950 @actor humphrey bogart",
		"@year 1999",
		"",
	}
	for _, in := range inputs {
		q := Parse(in, nil)
		u := q.ToPrettyURL(URLOptions{Root: "/search/", KeepOrder: true})
		back := ParsePrettyURL(u, "/search/", nil)
		if back.User() != q.User() {
			t.Errorf("round trip of %q via %q: User() = %q, want %q", in, u, back.User(), q.User())
		}
		if back.Canonical() != q.Canonical() {
			t.Errorf("round trip of %q: Canonical() = %q, want %q", in, back.Canonical(), q.Canonical())
		}
	}
}

func TestPrettyURL_RoundTripWithoutOrder(t *testing.T) {
	q := Parse("@year 1999 @-genre drama @actor harrison ford", nil)
	back := ParsePrettyURL(q.ToPrettyURL(URLOptions{}), "", nil)
	if !back.Equal(q) {
		t.Errorf("Canonical() = %q, want %q", back.Canonical(), q.Canonical())
	}
}
