// Package test contains session scenarios described in YAML files.
package test

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/nasdf/jvivo/filter"
	"gopkg.in/yaml.v3"
)

//go:embed cases
var casesFS embed.FS

// Record is the object type stored by every scenario.
type Record struct {
	A    int      `jvivo:"a" yaml:"a"`
	Name string   `jvivo:"name" yaml:"name"`
	Tags []string `jvivo:"tags" yaml:"tags"`
}

func (Record) SchemaName() string {
	return "jvivo.test.Record"
}

type TestCase struct {
	// Description is a simple description for the test case.
	Description string `yaml:"description"`
	// Operations is a list of all session operations to run in this test case.
	Operations []Operation `yaml:"operations"`
}

type Operation struct {
	// Insert contains records to insert.
	Insert []Record `yaml:"insert"`
	// Delete schedules the removal of matching records.
	Delete *Filter `yaml:"delete"`
	// Persist flushes the session when set.
	Persist bool `yaml:"persist"`
	// Find contains the expected records returned by finding all records.
	Find *[]Record `yaml:"find"`
	// FindWhere finds the records matching a filter.
	FindWhere *FindWhere `yaml:"findWhere"`
	// Files is the expected number of persisted records.
	Files *int `yaml:"files"`
}

type FindWhere struct {
	Filter Filter   `yaml:"filter"`
	Expect []Record `yaml:"expect"`
}

// Filter describes a filter tree.
type Filter struct {
	Attr     string   `yaml:"attr"`
	Op       string   `yaml:"op"`
	Value    any      `yaml:"value"`
	Or       bool     `yaml:"or"`
	Not      bool     `yaml:"not"`
	Children []Filter `yaml:"children"`
}

// Build returns the filter tree described by f.
func (f Filter) Build() (*filter.Filter, error) {
	pred, err := filter.Op(f.Op, f.Value)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", f.Attr, err)
	}
	out := filter.Where(f.Attr, pred)
	for _, c := range f.Children {
		child, err := c.Build()
		if err != nil {
			return nil, err
		}
		if c.Or {
			out.Or(child)
		} else {
			out.And(child)
		}
	}
	if f.Not {
		out.Not()
	}
	return out, nil
}

// TestCasePaths returns a list of all test case file paths.
func TestCasePaths() (paths []string, _ error) {
	return paths, fs.WalkDir(casesFS, "cases", func(path string, d fs.DirEntry, err error) error {
		if filepath.Ext(path) == ".yaml" {
			paths = append(paths, path)
		}
		return err
	})
}

// LoadTestCase loads and parses a test case file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := fs.ReadFile(casesFS, path)
	if err != nil {
		return nil, err
	}
	var testCase TestCase
	if err := yaml.Unmarshal(data, &testCase); err != nil {
		return nil, err
	}
	return &testCase, nil
}
