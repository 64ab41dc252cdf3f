package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	ini "gopkg.in/ini.v1"
)

// ResolveFiles expands pattern as a glob; if nothing matches, pattern is
// treated as a literal path (so a missing file surfaces as a load error
// rather than silently matching zero files), matching the teacher's own
// resolveConfigFiles.
func ResolveFiles(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		files = []string{pattern}
	}
	sort.Strings(files)
	return files, nil
}

// LoadSections reads every file in paths (case-sensitive keys, shadowed
// keys resolved last-one-wins within a file) and returns
// {section name -> {key -> value}}. A section name defined in two
// different files is a fatal *ConflictError; within one file, a
// duplicate section header merges via ini's shadow mechanism instead.
func LoadSections(paths []string) (map[string]map[string]string, error) {
	sections := map[string]map[string]string{}
	sourceFile := map[string]string{}

	for _, path := range paths {
		cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, InsensitiveKeys: false}, path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
		for _, sec := range cfg.Sections() {
			name := sec.Name()
			if name == ini.DefaultSection && len(sec.Keys()) == 0 {
				continue
			}
			if existing, ok := sourceFile[name]; ok && existing != path {
				return nil, &ConflictError{Name: name, FileA: existing, FileB: path}
			}
			sections[name] = sectionToMap(sec)
			sourceFile[name] = path
		}
	}
	return sections, nil
}

func sectionToMap(sec *ini.Section) map[string]string {
	m := make(map[string]string, len(sec.Keys()))
	for _, key := range sec.Keys() {
		vals := key.ValueWithShadows()
		if len(vals) == 0 {
			m[key.Name()] = ""
			continue
		}
		m[key.Name()] = vals[len(vals)-1]
	}
	return m
}

// isTemplateSection reports whether name is a cascading template section:
// the reserved DEFAULT section, or any section whose name starts with "_".
func isTemplateSection(name string) bool {
	return name == ini.DefaultSection || strings.HasPrefix(name, "_")
}

// CascadeTemplates merges every template section's options into every
// non-template section, with the section's own keys taking precedence.
// Template sections are never included in the result — they are never
// executed as jobs or datasources in their own right. Templates are
// merged in name-sorted order when more than one is present, so the
// result is deterministic regardless of file iteration order.
func CascadeTemplates(raw map[string]map[string]string) map[string]map[string]string {
	var templateNames []string
	for name := range raw {
		if isTemplateSection(name) {
			templateNames = append(templateNames, name)
		}
	}
	sort.Strings(templateNames)

	out := make(map[string]map[string]string, len(raw))
	for name, kv := range raw {
		if isTemplateSection(name) {
			continue
		}
		merged := map[string]string{}
		for _, t := range templateNames {
			for k, v := range raw[t] {
				merged[k] = v
			}
		}
		for k, v := range kv {
			merged[k] = v
		}
		out[name] = merged
	}
	return out
}

// NonTemplateSections returns the section names in raw that are not
// templates, sorted for deterministic iteration (e.g. "run every job").
func NonTemplateSections(raw map[string]map[string]string) []string {
	var names []string
	for name := range raw {
		if !isTemplateSection(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
