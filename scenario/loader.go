package scenario

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Load reads and validates the scenario XML document at path, returning
// both the strongly-typed Document used by the compiler and the error
// from any schema-level violation (missing name, step/group with no
// name, a <dependency> with no step attribute).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario: reading %s", path)
	}

	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "scenario: parsing %s", path)
	}
	doc.Path, err = filepath.Abs(path)
	if err != nil {
		doc.Path = path
	}

	if err := Validate(&doc); err != nil {
		return nil, errors.Wrapf(err, "scenario: %s failed validation", path)
	}
	return &doc, nil
}

// Validate enforces the schema-level invariants Load promises: a scenario
// must be named, every step and group must be named, and every post-hoc
// <dependency> must name the step it attaches to.
func Validate(doc *Document) error {
	if doc.Name == "" {
		return errors.New("scenario element is missing a name attribute")
	}
	if err := validateSteps(doc.Steps); err != nil {
		return err
	}
	if err := validateGroups(doc.Groups); err != nil {
		return err
	}
	for _, dep := range doc.Dependencies {
		if dep.Step == "" {
			return errors.New("top-level <dependency> is missing a step attribute")
		}
	}
	for _, imp := range doc.Imports {
		if imp.File == "" {
			return errors.New("<import> is missing a file attribute")
		}
		for _, dep := range imp.Dependencies {
			if dep.Step == "" {
				return fmt.Errorf("<dependency> nested under import of %q is missing a step attribute", imp.File)
			}
		}
	}
	return nil
}

func validateSteps(steps []StepElement) error {
	for _, s := range steps {
		if s.Name == "" {
			return errors.New("<step> is missing a name attribute")
		}
	}
	return nil
}

func validateGroups(groups []GroupElement) error {
	for _, g := range groups {
		if g.Name == "" {
			return errors.New("<group> is missing a name attribute")
		}
		if err := validateSteps(g.Steps); err != nil {
			return err
		}
		if err := validateGroups(g.Groups); err != nil {
			return err
		}
	}
	return nil
}
