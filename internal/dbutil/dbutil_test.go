package dbutil

import "testing"

func TestQuoteLowercaseIsQuoted(t *testing.T) {
	if got := Quote("workers"); got != `"workers"` {
		t.Errorf("Quote(%q) = %q, want %q", "workers", got, `"workers"`)
	}
}

func TestQuoteReservedOrMixedCase(t *testing.T) {
	if got := Quote("Order"); got != `"Order"` {
		t.Errorf("Quote(%q) = %q, want %q", "Order", got, `"Order"`)
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified("public", "workers"); got != "public.workers" {
		t.Errorf("QuoteQualified = %q", got)
	}
}

func TestQuoteLiteralEscapesSingleQuotes(t *testing.T) {
	got := QuoteLiteral("O'Brien")
	want := "'O''Brien'"
	if got != want {
		t.Errorf("QuoteLiteral = %q, want %q", got, want)
	}
}

func TestJoinQuoted(t *testing.T) {
	got := JoinQuoted([]string{"name", "salary"}, ", ")
	want := "name, salary"
	if got != want {
		t.Errorf("JoinQuoted = %q, want %q", got, want)
	}
}

func TestDeriveNameIsDeterministic(t *testing.T) {
	a := DeriveName("_type_", []string{"name", "salary"})
	b := DeriveName("_type_", []string{"name", "salary"})
	if a != b {
		t.Errorf("DeriveName not deterministic: %q != %q", a, b)
	}
	if a != "_type__name_salary" {
		t.Errorf("DeriveName = %q", a)
	}
}
