package config

import (
	"path/filepath"
	"testing"
)

func TestLoadLabels(t *testing.T) {
	path := writeFile(t, `
[pins.17]
name = "Door"
description = "Reed switch"

[pins.18]
name = "Fan"

[pins.22]
`)
	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	changes, err := labels.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %v, want pins 17 and 18", changes)
	}
	if c := changes[17]; *c.Name != "Door" || *c.Description != "Reed switch" {
		t.Errorf("pin 17 = %+v", c)
	}
	if c := changes[18]; *c.Name != "Fan" || c.Description != nil {
		t.Errorf("pin 18 = %+v", c)
	}
}

func TestLoadLabelsMissingFile(t *testing.T) {
	labels, err := LoadLabels(filepath.Join(t.TempDir(), "labels.toml"))
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if changes, _ := labels.Changes(); len(changes) != 0 {
		t.Errorf("changes = %v", changes)
	}
}

func TestLabelsBadPinKey(t *testing.T) {
	labels, err := LoadLabels(writeFile(t, "[pins.fan]\nname = \"x\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := labels.Changes(); err == nil {
		t.Error("Changes accepted a non-numeric pin key")
	}
}
