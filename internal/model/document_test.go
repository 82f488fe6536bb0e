package model

import "testing"

func TestEntityTypeLabelsCappedOnePerClass(t *testing.T) {
	e := Entities{
		People:        []string{"Ada Lovelace", "Grace Hopper"},
		Organizations: []string{"Acme"},
	}
	labels := e.EntityTypeLabels()
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels (Person, Organization), got %v", labels)
	}
	seen := map[string]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	if !seen["Person"] || !seen["Organization"] {
		t.Fatalf("expected Person and Organization labels, got %v", labels)
	}
}

func TestEntityTypeLabelsAreValidCypherIdentifiers(t *testing.T) {
	e := Entities{People: []string{"Ada Lovelace"}, Organizations: []string{"Acme Inc"}, Locations: []string{"Berlin"}}
	for _, l := range e.EntityTypeLabels() {
		for _, r := range l {
			isAlnumOrUnderscore := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
			if !isAlnumOrUnderscore {
				t.Fatalf("label %q contains a character unsafe as a bare Cypher label: %q", l, r)
			}
		}
	}
}

func TestEntityTypeLabelsEmptyWhenNoEntities(t *testing.T) {
	if labels := (Entities{}).EntityTypeLabels(); len(labels) != 0 {
		t.Fatalf("expected no labels, got %v", labels)
	}
}
