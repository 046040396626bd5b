package diag

import (
	"reflect"
	"testing"
)

func TestString(t *testing.T) {
	withPath := Diagnostic{Document: 2, Path: "spec.replicas", Rule: RuleSchemaInvalid, Message: "out of range"}
	if got := withPath.String(); got != "doc[2] spec.replicas: schema.invalid: out of range" {
		t.Errorf("String() = %q", got)
	}

	atRoot := Diagnostic{Document: 0, Rule: RuleSchemaNotFound, Message: "no schema"}
	if got := atRoot.String(); got != "doc[0]: schema.not-found: no schema" {
		t.Errorf("String() = %q", got)
	}
}

func TestSort(t *testing.T) {
	diags := []Diagnostic{
		{Document: 1, Path: "b"},
		{Document: 0, Path: "z"},
		{Document: 1, Path: "a"},
		{Document: 0, Path: "a"},
	}
	Sort(diags)

	want := []Diagnostic{
		{Document: 0, Path: "a"},
		{Document: 0, Path: "z"},
		{Document: 1, Path: "a"},
		{Document: 1, Path: "b"},
	}
	if !reflect.DeepEqual(diags, want) {
		t.Errorf("Sort() = %v, want %v", diags, want)
	}
}

func TestDocuments(t *testing.T) {
	diags := []Diagnostic{
		{Document: 0, Rule: RuleStrictNone},
		{Document: 0, Rule: RuleStrictSet},
		{Document: 3, Rule: RuleQuantityInvalid},
	}
	got := Documents(diags)
	want := map[int]bool{0: true, 3: true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Documents() = %v, want %v", got, want)
	}

	if got := Documents(nil); len(got) != 0 {
		t.Errorf("Documents(nil) = %v, want empty", got)
	}
}
