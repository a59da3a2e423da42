package schema

import "testing"

func TestTypeOfFindsColumn(t *testing.T) {
	cols := []Column{{Name: "name", Type: "text"}, {Name: "salary", Type: "numeric"}}
	typ, err := TypeOf(cols, "salary")
	if err != nil {
		t.Fatal(err)
	}
	if typ != "numeric" {
		t.Errorf("TypeOf = %q, want numeric", typ)
	}
}

func TestTypeOfMissingColumn(t *testing.T) {
	cols := []Column{{Name: "name", Type: "text"}}
	if _, err := TypeOf(cols, "missing"); err == nil {
		t.Fatal("expected error for missing column")
	}
}
