// Package institution recognizes the issuing bank of a statement and exposes
// the bank's known line patterns.
package institution

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Strength grades how sure a detection is.
type Strength string

// Detection strengths.
const (
	StrengthNone   Strength = "none"
	StrengthWeak   Strength = "weak"
	StrengthStrong Strength = "strong"
)

// LinePattern is one institution-scoped transaction line regex.
type LinePattern struct {
	Name     string `yaml:"name"`
	Regex    string `yaml:"regex"`
	Priority int    `yaml:"priority"`
}

// Institution is one catalog entry.
type Institution struct {
	Name      string           `yaml:"name"`
	DateOrder fields.DateOrder `yaml:"date_order"`
	Keywords  []string         `yaml:"keywords"`
	Domains   []string         `yaml:"domains"`
	Codes     []string         `yaml:"codes"`
	Patterns  []LinePattern    `yaml:"patterns"`

	keywordRes []*regexp.Regexp
	domainRes  []*regexp.Regexp
	codeRes    []*regexp.Regexp
}

// Detection is the outcome of Detect.
type Detection struct {
	Institution *Institution
	Name        string
	Strength    Strength
	Signals     []string
}

// Found reports whether any institution was recognized.
func (d Detection) Found() bool {
	return d.Institution != nil
}

// Catalog is a set of known institutions.
type Catalog struct {
	Institutions []*Institution `yaml:"institutions"`
}

// Load parses and compiles a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse institution catalog: %w", err)
	}

	for _, inst := range c.Institutions {
		if inst.Name == "" {
			return nil, fmt.Errorf("institution catalog entry without a name")
		}
		for _, kw := range inst.Keywords {
			inst.keywordRes = append(inst.keywordRes, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		for _, d := range inst.Domains {
			inst.domainRes = append(inst.domainRes, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(d)+`\b`))
		}
		for _, code := range inst.Codes {
			re, err := regexp.Compile(code)
			if err != nil {
				return nil, fmt.Errorf("failed to compile code pattern for %s: %w", inst.Name, err)
			}
			inst.codeRes = append(inst.codeRes, re)
		}
		for _, p := range inst.Patterns {
			if _, err := regexp.Compile(p.Regex); err != nil {
				return nil, fmt.Errorf("failed to compile line pattern %s for %s: %w", p.Name, inst.Name, err)
			}
		}
	}
	return &c, nil
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(catalogYAML)
		if err != nil {
			panic(fmt.Sprintf("institution: embedded catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup finds an institution by name, case-insensitively.
func (c *Catalog) Lookup(name string) (*Institution, bool) {
	for _, inst := range c.Institutions {
		if strings.EqualFold(inst.Name, name) {
			return inst, true
		}
	}
	return nil, false
}

// Detect scans text for institution signals. A detection is strong when a
// bank code matched or when at least two kinds of signal agree; a lone
// keyword or domain is weak. The institution with the most signals wins and
// catalog order breaks ties.
func (c *Catalog) Detect(text string) Detection {
	best := Detection{Strength: StrengthNone}
	bestScore := 0

	for _, inst := range c.Institutions {
		var signals []string
		kinds := 0
		codeHit := false

		if hits := matchAll(inst.keywordRes, inst.Keywords, text); len(hits) > 0 {
			kinds++
			signals = append(signals, prefixed("keyword", hits)...)
		}
		if hits := matchAll(inst.domainRes, inst.Domains, text); len(hits) > 0 {
			kinds++
			signals = append(signals, prefixed("domain", hits)...)
		}
		for _, re := range inst.codeRes {
			if m := re.FindString(text); m != "" {
				codeHit = true
				signals = append(signals, "code:"+m)
			}
		}
		if codeHit {
			kinds++
		}

		if len(signals) == 0 || len(signals) <= bestScore {
			continue
		}

		strength := StrengthWeak
		if codeHit || kinds >= 2 {
			strength = StrengthStrong
		}
		bestScore = len(signals)
		best = Detection{Institution: inst, Name: inst.Name, Strength: strength, Signals: signals}
	}
	return best
}

// BuiltinPatterns converts every catalog line pattern into a built-in rule,
// one per text-bearing file type.
func (c *Catalog) BuiltinPatterns() []model.RegexPattern {
	var out []model.RegexPattern
	for _, inst := range c.Institutions {
		for _, p := range inst.Patterns {
			for _, ft := range []model.FileType{model.FileTypePDF, model.FileTypeText} {
				out = append(out, model.RegexPattern{
					Name:        p.Name,
					Pattern:     p.Regex,
					FileType:    ft,
					Institution: inst.Name,
					Description: fmt.Sprintf("%s statement line", inst.Name),
					Priority:    p.Priority,
					Confidence:  model.InitialPatternConfidence,
					IsActive:    true,
					IsBuiltin:   true,
				})
			}
		}
	}
	return out
}

// RegexPatterns returns the institution's line patterns as in-memory rules.
func (inst *Institution) RegexPatterns(ft model.FileType) []model.RegexPattern {
	out := make([]model.RegexPattern, 0, len(inst.Patterns))
	for _, p := range inst.Patterns {
		out = append(out, model.RegexPattern{
			Name:        p.Name,
			Pattern:     p.Regex,
			FileType:    ft,
			Institution: inst.Name,
			Priority:    p.Priority,
			Confidence:  model.InitialPatternConfidence,
			IsActive:    true,
			IsBuiltin:   true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func matchAll(res []*regexp.Regexp, names []string, text string) []string {
	var hits []string
	for i, re := range res {
		if re.MatchString(text) {
			hits = append(hits, names[i])
		}
	}
	return hits
}

func prefixed(kind string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = kind + ":" + v
	}
	return out
}
