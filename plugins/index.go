package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mini-leebee/leebee"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type (
	// Index is the plugin index file. It lists the samples that become
	// sampler plugins, besides the built-in plugins.
	//
	//	samplers:
	//	  - name: kick drum
	//	    file: samples/kick.wav
	//	    root: 36
	Index struct {
		Samplers []SamplerEntry `yaml:"samplers"`

		dir string
	}

	// SamplerEntry is a sample in the plugin index. File is relative to the
	// index file. Root is the note that plays the sample untransposed; 60 if
	// omitted.
	SamplerEntry struct {
		Name string `yaml:"name"`
		File string `yaml:"file"`
		Root *uint8 `yaml:"root,omitempty"`
	}
)

// ParseIndex reads an index. Relative sample paths are resolved from dir.
func ParseIndex(data []byte, dir string) (*Index, error) {
	var ret Index
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("plugin index: %w", err)
	}
	ret.dir = dir
	seen := map[string]bool{}
	for i, s := range ret.Samplers {
		if strings.TrimSpace(s.Name) == "" || s.File == "" {
			return nil, fmt.Errorf("plugin index: sampler %d needs a name and a file", i)
		}
		if s.Root != nil && *s.Root > 127 {
			return nil, fmt.Errorf("plugin index: sampler %q has root %d", s.Name, *s.Root)
		}
		id := s.ID()
		if seen[id] {
			return nil, fmt.Errorf("plugin index: duplicate sampler %q", id)
		}
		seen[id] = true
	}
	return &ret, nil
}

// LoadIndex reads an index file.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadIndex: %w", err)
	}
	return ParseIndex(data, filepath.Dir(path))
}

// ID is the plugin id of the sampler, e.g. "sampler:kick-drum".
func (s SamplerEntry) ID() string {
	return "sampler:" + strings.Join(strings.Fields(strings.ToLower(s.Name)), "-")
}

// Factories decodes the samples of the index and returns a sampler plugin
// for each.
func (x *Index) Factories() ([]leebee.Factory, error) {
	caser := cases.Title(language.English)
	ret := make([]leebee.Factory, 0, len(x.Samplers))
	for _, s := range x.Samplers {
		path := s.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(x.dir, path)
		}
		sample, err := LoadSample(path)
		if err != nil {
			return nil, fmt.Errorf("sampler %q: %w", s.Name, err)
		}
		root := uint8(60)
		if s.Root != nil {
			root = *s.Root
		}
		ret = append(ret, NewSampler(s.ID(), caser.String(s.Name), sample, root))
	}
	return ret, nil
}

// All returns the built-in plugins followed by those of the index at path,
// if path is not empty.
func All(path string) ([]leebee.Factory, error) {
	ret := Builtins()
	if path == "" {
		return ret, nil
	}
	index, err := LoadIndex(path)
	if err != nil {
		return nil, err
	}
	samplers, err := index.Factories()
	if err != nil {
		return nil, err
	}
	return append(ret, samplers...), nil
}
