package refdata

import "testing"

func TestSimpleDictionaryCaseFolding(t *testing.T) {
	d := NewSimpleDictionary("greetings", false, "Hello", "Grüß Gott")
	if !d.Contains("HELLO") {
		t.Fatalf("expected case-insensitive match")
	}
	if !d.Contains("GRÜß GOTT") {
		t.Fatalf("expected case folding of non-ASCII letters")
	}
	strict := NewSimpleDictionary("strict", true, "Hello")
	if strict.Contains("hello") {
		t.Fatalf("case-sensitive dictionary must not match different case")
	}
}

func TestSynonymCatalog(t *testing.T) {
	c := NewSimpleSynonymCatalog("countries", false, map[string][]string{
		"Denmark": {"DK", "Danmark"},
	})
	if m, ok := c.MasterTerm("dk"); !ok || m != "Denmark" {
		t.Fatalf("expected Denmark, got %q (%v)", m, ok)
	}
	if m, ok := c.MasterTerm("Denmark"); !ok || m != "Denmark" {
		t.Fatalf("expected master term to map to itself, got %q", m)
	}
	if _, ok := c.MasterTerm("Sweden"); ok {
		t.Fatalf("unexpected synonym match")
	}
}

func TestStringPatterns(t *testing.T) {
	simple := NewSimpleStringPattern("name and age", "Aaaa 99")
	for value, want := range map[string]bool{
		"John 42":   true,
		"Al 7":      true,
		"john 42":   false,
		"John":      false,
		"John 42 x": false,
	} {
		if got := simple.Matches(value); got != want {
			t.Fatalf("simple pattern on %q: expected %v, got %v", value, want, got)
		}
	}

	email, err := NewRegexStringPattern("email", `[a-z]+@[a-z]+\.[a-z]{2,}`, true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !email.Matches("kasper@example.com") || email.Matches("kasper@example.com trailing") {
		t.Fatalf("unexpected regex matching")
	}
	if _, err := NewRegexStringPattern("broken", "(", false); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog().
		AddDictionary(NewSimpleDictionary("d", false)).
		AddStringPattern(NewSimpleStringPattern("p", "aaa"))

	if _, err := c.Dictionary("d"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := c.SynonymCatalog("missing"); err == nil {
		t.Fatalf("expected error for missing synonym catalog")
	}
	d, s, p := c.Names()
	if len(d) != 1 || len(s) != 0 || len(p) != 1 {
		t.Fatalf("unexpected names %v %v %v", d, s, p)
	}
}
