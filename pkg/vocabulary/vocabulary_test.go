package vocabulary

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSynonymsAndCase(t *testing.T) {
	v := Default()

	cases := map[string]Feature{
		"heart_rate":  "pulse",
		"Heart_Rate":  "pulse",
		" lactate ":   "lactic_acid",
		"pulse":       "pulse",
		"wbc":         "wbc",
		"systolic_bp": "bp_sys",
	}
	for raw, want := range cases {
		got, ok := v.Resolve(raw)
		if !ok || got != want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}

	if _, ok := v.Resolve("not_a_feature"); ok {
		t.Error("unknown name should not resolve")
	}
	if _, ok := v.Resolve(""); ok {
		t.Error("empty name should not resolve")
	}
}

func TestCompoundLookup(t *testing.T) {
	v := Default()

	c, ok := v.Compound("BP")
	if !ok {
		t.Fatal("bp compound missing")
	}
	if c.Delimiter != "/" || c.First != "bp_sys" || c.Second != "bp_dias" {
		t.Errorf("unexpected compound rule: %+v", c)
	}
	// Compound halves count as known features.
	if !v.Contains("bp_sys") || !v.Contains("bp_dias") {
		t.Error("compound halves should be known features")
	}
}

func TestSuffixed(t *testing.T) {
	got := Suffixed([]Feature{"pulse", "wbc"}, []string{SuffixMean, SuffixStd})
	want := []Feature{"pulse_mean", "pulse_std", "wbc_mean", "wbc_std"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Suffixed[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFlagNamesStable(t *testing.T) {
	v := Default()

	first := v.FlagNames()
	second := v.FlagNames()
	if len(first) == 0 {
		t.Fatal("no flag names")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("flag order unstable at %d", i)
		}
	}
	// Medication groups come before diagnosis groups.
	if first[0] != "on_antiinf_meds" {
		t.Errorf("first flag = %q, want on_antiinf_meds", first[0])
	}
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	content := []byte("vitals: [pulse, temp]\nlabs: [wbc]\nsynonyms:\n  hr: pulse\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(v.Vitals) != 2 || len(v.Labs) != 1 {
		t.Fatalf("unexpected vocabulary: %+v", v)
	}
	if f, ok := v.Resolve("hr"); !ok || f != "pulse" {
		t.Errorf("Resolve(hr) = %q, %v", f, ok)
	}
}

func TestLoadMalformedFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	if err := os.WriteFile(path, []byte("vitals: [pulse\n  bad"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
	if len(v.Base()) == 0 {
		t.Error("should fall back to the default vocabulary")
	}
}

func TestLoadEmptyCatalogFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	if err := os.WriteFile(path, []byte("synonyms:\n  hr: pulse\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path)
	if err == nil {
		t.Fatal("expected error for a catalog with no base features")
	}
	if len(v.Base()) == 0 {
		t.Error("should fall back to the default vocabulary")
	}
}

func TestLoadMissingFallsBackToDefault(t *testing.T) {
	v, err := Load("/nonexistent/vocab.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(v.Vitals) == 0 {
		t.Error("should fall back to the default vocabulary")
	}
}
