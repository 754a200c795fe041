package cleanse

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"template token", "Hello {%nbsp%}world", "Hello world"},
		{"html tag", "<b>Hello</b>  world", "Hello world"},
		{"collapses newlines", "Hello\n\n\nworld", "Hello world"},
		{"all whitespace", "   \t\n  ", ""},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Text(c.in); got != c.want {
				t.Fatalf("Text(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestText_Idempotent(t *testing.T) {
	in := "Hello {%nbsp%}<i>world</i>   again"
	once := Text(in)
	twice := Text(once)
	if once != twice {
		t.Fatalf("cleanse not idempotent: %q != %q", once, twice)
	}
}
