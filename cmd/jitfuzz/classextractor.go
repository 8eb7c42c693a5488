package main

import (
	"os"
	"regexp"
)

// regexClassExtractor is a minimal stand-in for the out-of-scope
// source-level parser (spec.md §1): it recognizes top-level and nested
// class/interface/enum/record declarations well enough to build the VM's
// class-restriction flag. A real parser integration replaces this without
// touching pkg/executor, which only depends on the ExtractClasses
// interface.
type regexClassExtractor struct{}

var classDecl = regexp.MustCompile(`\b(?:class|interface|enum|record)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

func (regexClassExtractor) ExtractClasses(sourcePath string) ([]string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	matches := classDecl.FindAllSubmatch(data, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := string(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}
