package vocabulary

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature identifies one canonical column of the per-hour matrix. Every
// column name flowing through the pipeline is a Feature; raw source names
// are only ever strings until the normalizer resolves them.
type Feature string

const (
	// Suffixes appended by the rolling aggregator.
	SuffixMean     = "_mean"
	SuffixStd      = "_std"
	SuffixMin      = "_min"
	SuffixMax      = "_max"
	SuffixSkew     = "_skew"
	SuffixKurtosis = "_kurtosis"
	SuffixZScore   = "_zscore"

	// Target column attached by the label merger.
	TargetLabel Feature = "sepsis_label"
)

// Vocabulary is the fixed feature catalog: the base vitals and labs
// vocabularies, the synonym map from raw source names onto canonical
// features, compound fields that split into two features, and the keyword
// groups used for medication and diagnosis flags.
type Vocabulary struct {
	Vitals          []Feature                `yaml:"vitals"`
	Labs            []Feature                `yaml:"labs"`
	Synonyms        map[string]Feature       `yaml:"synonyms"`
	Compounds       map[string]CompoundField `yaml:"compounds"`
	MedicationFlags map[string][]string      `yaml:"medication_groups"`
	DiagnosisFlags  map[string][]string      `yaml:"diagnosis_groups"`

	known map[Feature]struct{}
}

// CompoundField describes a raw field that encodes two clinical values in
// one string, like a blood pressure of "120/80".
type CompoundField struct {
	Delimiter string  `yaml:"delimiter"`
	First     Feature `yaml:"first"`
	Second    Feature `yaml:"second"`
}

// Load reads a vocabulary from a YAML file, falling back to the compiled-in
// default when path is empty. Every error return carries the default
// vocabulary, so callers that log and continue still get a usable catalog.
func Load(path string) (Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return Default(), err
	}
	var v Vocabulary
	if err := yaml.Unmarshal(content, &v); err != nil {
		return Default(), err
	}
	if len(v.Vitals) == 0 && len(v.Labs) == 0 {
		return Default(), fmt.Errorf("vocabulary defines no base features")
	}
	v.index()
	return v, nil
}

func (v *Vocabulary) index() {
	v.known = make(map[Feature]struct{}, len(v.Vitals)+len(v.Labs))
	for _, f := range v.Vitals {
		v.known[f] = struct{}{}
	}
	for _, f := range v.Labs {
		v.known[f] = struct{}{}
	}
	for _, c := range v.Compounds {
		v.known[c.First] = struct{}{}
		v.known[c.Second] = struct{}{}
	}
}

// Base returns the vitals and labs features in vocabulary order.
func (v Vocabulary) Base() []Feature {
	out := make([]Feature, 0, len(v.Vitals)+len(v.Labs))
	out = append(out, v.Vitals...)
	out = append(out, v.Labs...)
	return out
}

// Contains reports whether f is a known base feature.
func (v Vocabulary) Contains(f Feature) bool {
	_, ok := v.known[f]
	return ok
}

// Resolve maps a raw source variable name onto a canonical feature. The
// second return is false when the name is not in the vocabulary and has no
// synonym.
func (v Vocabulary) Resolve(rawName string) (Feature, bool) {
	key := strings.ToLower(strings.TrimSpace(rawName))
	if key == "" {
		return "", false
	}
	if f, ok := v.Synonyms[key]; ok {
		return f, true
	}
	f := Feature(key)
	if v.Contains(f) {
		return f, true
	}
	return "", false
}

// Compound looks up the split rule for a raw compound field name.
func (v Vocabulary) Compound(rawName string) (CompoundField, bool) {
	c, ok := v.Compounds[strings.ToLower(strings.TrimSpace(rawName))]
	return c, ok
}

// FlagNames returns all medication and diagnosis flag columns, medication
// groups first. Order is stable so emitted matrices have stable schemas.
func (v Vocabulary) FlagNames() []Feature {
	names := make([]Feature, 0, len(v.MedicationFlags)+len(v.DiagnosisFlags))
	for _, name := range sortedKeys(v.MedicationFlags) {
		names = append(names, Feature(name))
	}
	for _, name := range sortedKeys(v.DiagnosisFlags) {
		names = append(names, Feature(name))
	}
	return names
}

// Suffixed expands each base feature into its rolling-statistic columns.
func Suffixed(base []Feature, suffixes []string) []Feature {
	out := make([]Feature, 0, len(base)*len(suffixes))
	for _, f := range base {
		for _, s := range suffixes {
			out = append(out, Feature(string(f)+s))
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default returns the pediatric sepsis vocabulary the platform ships with.
func Default() Vocabulary {
	v := Vocabulary{
		Vitals: []Feature{
			"weight", "pulse", "map", "bp_sys", "bp_dias", "resp", "spo2",
			"temp", "fio2", "pao2_fio2", "o2_flow", "coma_scale_total",
			"pupil_left_size", "pupil_right_size", "urine", "vol_infused",
			"cap_refill",
		},
		Labs: []Feature{
			"ph", "po2", "pco2", "potassium", "sodium", "chloride", "glucose",
			"bun", "creatinine", "calcium", "calcium_ionized", "co2",
			"hemoglobin", "bilirubin_total", "albumin", "wbc", "platelets",
			"ptt", "base_excess", "bicarbonate", "lactic_acid", "base_deficit",
			"band_neutrophils", "alt", "ast", "pt", "inr", "ddimer",
			"fibrinogen", "lymphocytes", "neutrophils",
		},
		Synonyms: map[string]Feature{
			"heart_rate":              "pulse",
			"hr":                      "pulse",
			"mean_arterial_pressure":  "map",
			"mean_bp":                 "map",
			"respiratory_rate":        "resp",
			"rr":                      "resp",
			"oxygen_saturation":       "spo2",
			"pulse_oximetry":          "spo2",
			"temperature":             "temp",
			"lactate":                 "lactic_acid",
			"lactic acid":             "lactic_acid",
			"wbc_count":               "wbc",
			"white_blood_cell_count":  "wbc",
			"platelet_count":          "platelets",
			"total_bilirubin":         "bilirubin_total",
			"blood_urea_nitrogen":     "bun",
			"serum_creatinine":        "creatinine",
			"ionized_calcium":         "calcium_ionized",
			"gcs_total":               "coma_scale_total",
			"glasgow_coma_scale":      "coma_scale_total",
			"urine_output":            "urine",
			"capillary_refill":        "cap_refill",
			"systolic_bp":             "bp_sys",
			"diastolic_bp":            "bp_dias",
		},
		Compounds: map[string]CompoundField{
			"bp": {Delimiter: "/", First: "bp_sys", Second: "bp_dias"},
		},
		MedicationFlags: map[string][]string{
			"on_asthma_meds": {
				"albuterol", "dexamethasone", "epinephrine",
				"methylprednisolone", "magnesium sulfate", "terbutaline",
				"levalbuterol", "xopenex",
			},
			"on_seizure_meds": {
				"lorazepam", "levetiracetam", "fosphenytoin", "phenobarbital",
			},
			"on_vasopressors": {
				"epinephrine", "phenylephrine", "dopamine", "norepinephrine",
				"vasopressin",
			},
			"on_antiinf_meds": {
				"acyclovir", "amikacin", "amoxicillin", "amphotericin",
				"ampicillin", "azithromycin", "aztreonam", "cefazolin",
				"cefdinir", "cefepime", "cefixime", "cefotaxime", "cefotetan",
				"cefoxitin", "cefprozil", "ceftazidime", "ceftriaxone",
				"cefuroxime", "cephalexin", "cidofovir", "ciprofloxacin",
				"clarithromycin", "clindamycin", "dapsone", "daptomycin",
				"doxycycline", "ertapenem", "ethambutol", "fluconazole",
				"foscarnet", "ganciclovir", "gentamicin", "imipenem",
				"isoniazid", "levofloxacin", "linezolid", "meropenem",
				"metronidazole", "micafungin", "moxifloxacin",
				"nitrofurantoin", "oseltamivir", "oxacillin", "penicillin",
				"piperacillin", "posaconazole", "rifampin",
				"sulfamethoxazole", "ticarcillin", "tobramycin", "vancomycin",
				"voriconazole",
			},
			"on_insulin": {"insulin"},
		},
		DiagnosisFlags: map[string][]string{
			"sepsis_septicemia_diag": {"sepsis", "septicemia"},
			"septic_shock_diag":      {"septic shock"},
			"sickle_cell_diag":       {"sickle"},
			"dka_diag":               {"diabetes", "ketoacidosis"},
			"asthmaticus_diag":       {"asthmaticus"},
			"kidney_failure_diag":    {"kidney disease", "kidney failure"},
		},
	}
	v.index()
	return v
}
