// Package emotion turns emotion labels into the slider payload sent to
// avatar clients on the metadata endpoint.
package emotion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Neutral is the fallback category for unknown labels
const Neutral = "Neutral"

// Categories are the slider names every payload carries, in wire order
var Categories = []string{Neutral, "Happy", "Sad", "Angry", "Disgust", "Fear", "Surprise"}

// Payload maps each category to an intensity in [0, 1]
type Payload map[string]float64

// MarshalJSON writes the categories in their fixed order
func (p Payload) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(p))
	seen := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		if _, ok := p[c]; ok {
			keys = append(keys, c)
			seen[c] = true
		}
	}
	var extra []string
	for k := range p {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		value, err := json.Marshal(p[k])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p Payload) clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Mapper holds one preset payload per category
type Mapper struct {
	presets map[string]Payload
}

// NewMapper returns a mapper with the built-in presets
func NewMapper() *Mapper {
	return &Mapper{presets: defaultPresets()}
}

func defaultPresets() map[string]Payload {
	row := func(v ...float64) Payload {
		p := make(Payload, len(Categories))
		for i, c := range Categories {
			p[c] = v[i]
		}
		return p
	}
	//                  Neutral Happy Sad  Angry Disgust Fear Surprise
	return map[string]Payload{
		"Neutral":  row(0.8, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0),
		"Happy":    row(0.4, 1.0, 0.0, 0.0, 0.0, 0.1, 0.6),
		"Sad":      row(0.5, 0.0, 1.0, 0.2, 0.0, 0.4, 0.0),
		"Angry":    row(0.3, 0.0, 0.2, 1.0, 0.3, 0.2, 0.2),
		"Disgust":  row(0.2, 0.0, 0.3, 0.4, 1.0, 0.2, 0.0),
		"Fear":     row(0.4, 0.0, 0.4, 0.0, 0.0, 1.0, 0.8),
		"Surprise": row(0.3, 0.6, 0.0, 0.0, 0.0, 0.6, 1.0),
	}
}

// Canonical upper-cases the first letter and lower-cases the rest
func Canonical(label string) string {
	label = strings.TrimSpace(label)
	r, size := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(label[size:])
}

// Resolve returns the preset name used for label
func (m *Mapper) Resolve(label string) string {
	name := Canonical(label)
	if _, ok := m.presets[name]; ok {
		return name
	}
	return Neutral
}

// Payload returns a copy of the preset for label, Neutral if unknown
func (m *Mapper) Payload(label string) Payload {
	return m.presets[m.Resolve(label)].clone()
}

// JSON returns the encoded payload for label
func (m *Mapper) JSON(label string) ([]byte, error) {
	return json.Marshal(m.Payload(label))
}

// presetFile is the YAML layout accepted by LoadPresets:
//
//	presets:
//	  Happy: {Neutral: 0.2, Happy: 1.0, Surprise: 0.8}
type presetFile struct {
	Presets map[string]map[string]float64 `yaml:"presets"`
}

// LoadPresets returns a mapper whose built-in presets are overridden by the
// rows in the YAML file at path. Categories missing from a row are zero.
func LoadPresets(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emotion presets: %w", err)
	}

	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse emotion presets %s: %w", path, err)
	}

	m := NewMapper()
	known := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
	}

	for label, row := range f.Presets {
		name := Canonical(label)
		if name == "" {
			return nil, fmt.Errorf("emotion presets %s: empty label", path)
		}
		p := make(Payload, len(Categories))
		for _, c := range Categories {
			p[c] = 0
		}
		for cat, v := range row {
			c := Canonical(cat)
			if !known[c] {
				return nil, fmt.Errorf("emotion presets %s: %s: unknown category %q", path, name, cat)
			}
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("emotion presets %s: %s.%s = %v is outside [0,1]", path, name, c, v)
			}
			p[c] = v
		}
		m.presets[name] = p
	}
	return m, nil
}

// Labels returns the known preset names, sorted
func (m *Mapper) Labels() []string {
	out := make([]string, 0, len(m.presets))
	for k := range m.presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
