package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/well-timeline/backend/internal/models"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// VocabularyFile is the YAML layout of a vocabulary file.
type VocabularyFile struct {
	FlowRate struct {
		Reject []string `yaml:"reject"`
		Accept []string `yaml:"accept"`
	} `yaml:"flowRate"`
	Stimulation struct {
		Default  string `yaml:"default"`
		Families []struct {
			Kind     string   `yaml:"kind"`
			Patterns []string `yaml:"patterns"`
		} `yaml:"families"`
	} `yaml:"stimulation"`
	Cement struct {
		Default string              `yaml:"default"`
		Kinds   map[string][]string `yaml:"kinds"`
	} `yaml:"cement"`
}

type stimulationFamily struct {
	kind     models.StimulationKind
	patterns []*regexp.Regexp
}

// Vocabulary is a compiled set of keyword families.
type Vocabulary struct {
	flowReject         []*regexp.Regexp
	flowAccept         []*regexp.Regexp
	stimulation        []stimulationFamily
	defaultStimulation models.StimulationKind
	cementKinds        map[string]models.CementKind
	defaultCement      models.CementKind
}

var defaultVocabulary = mustDefaultVocabulary()

func mustDefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(fmt.Sprintf("normalize: embedded vocabulary: %v", err))
	}
	return v
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() *Vocabulary {
	return defaultVocabulary
}

// LoadVocabulary reads a vocabulary file. An empty path returns the
// built-in vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary compiles a YAML vocabulary.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var file VocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	v := &Vocabulary{
		defaultStimulation: models.StimulationAcidizacion,
		cementKinds:        make(map[string]models.CementKind),
		defaultCement:      models.CementKindCementacion,
	}

	var err error
	if v.flowReject, err = compileAll(file.FlowRate.Reject); err != nil {
		return nil, fmt.Errorf("flowRate.reject: %w", err)
	}
	if v.flowAccept, err = compileAll(file.FlowRate.Accept); err != nil {
		return nil, fmt.Errorf("flowRate.accept: %w", err)
	}

	if file.Stimulation.Default != "" {
		kind, ok := parseStimulationKind(file.Stimulation.Default)
		if !ok {
			return nil, fmt.Errorf("stimulation.default: unknown kind %q", file.Stimulation.Default)
		}
		v.defaultStimulation = kind
	}
	for _, fam := range file.Stimulation.Families {
		kind, ok := parseStimulationKind(fam.Kind)
		if !ok {
			return nil, fmt.Errorf("stimulation.families: unknown kind %q", fam.Kind)
		}
		patterns, err := compileAll(fam.Patterns)
		if err != nil {
			return nil, fmt.Errorf("stimulation.families[%s]: %w", fam.Kind, err)
		}
		v.stimulation = append(v.stimulation, stimulationFamily{kind: kind, patterns: patterns})
	}

	if file.Cement.Default != "" {
		kind, ok := parseCementKind(file.Cement.Default)
		if !ok {
			return nil, fmt.Errorf("cement.default: unknown kind %q", file.Cement.Default)
		}
		v.defaultCement = kind
	}
	for name, labels := range file.Cement.Kinds {
		kind, ok := parseCementKind(name)
		if !ok {
			return nil, fmt.Errorf("cement.kinds: unknown kind %q", name)
		}
		for _, label := range labels {
			v.cementKinds[label] = kind
		}
	}

	return v, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func parseStimulationKind(s string) (models.StimulationKind, bool) {
	switch k := models.StimulationKind(s); k {
	case models.StimulationAcidizacion, models.StimulationFractura, models.StimulationMinifractura:
		return k, true
	}
	return "", false
}

func parseCementKind(s string) (models.CementKind, bool) {
	switch k := models.CementKind(s); k {
	case models.CementKindCementacion, models.CementKindSqueeze, models.CementKindTamponCemento, models.CementKindBpp:
		return k, true
	}
	return "", false
}
