// Package scenario holds the XML document model for a scenario file: the
// root scenario element, its parameters, imports, steps, groups, and
// post-hoc dependency overrides, plus the loader that parses and validates
// one from disk.
package scenario

import "encoding/xml"

// Document is the root of a parsed scenario file.
type Document struct {
	XMLName      xml.Name            `xml:"scenario"`
	Name         string              `xml:"name,attr"`
	Description  string              `xml:"description,attr"`
	Parameters   []Param             `xml:"parameters>param"`
	Imports      []Import            `xml:"import"`
	Steps        []StepElement       `xml:"step"`
	Groups       []GroupElement      `xml:"group"`
	Dependencies []DependencyElement `xml:"dependency"`

	// Path is the filesystem path Document was loaded from, set by the
	// loader. Relative <import file="…"/> paths in this document resolve
	// against its directory.
	Path string `xml:"-"`
}

// Param is one <param name="…" value="…"/> entry under <parameters>.
type Param struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Import is an <import file="…" namespace="…"/> element. Its nested
// <dependency> children are edge overrides applied after the imported
// sub-scenario's own steps and groups are namespaced into the parent.
type Import struct {
	File         string              `xml:"file,attr"`
	Namespace    string              `xml:"namespace,attr"`
	Dependencies []DependencyElement `xml:"dependency"`
}

// StepElement is one <step/> element, before parameter substitution.
type StepElement struct {
	Name     string `xml:"name,attr"`
	Exec     string `xml:"exec,attr"`
	Env      string `xml:"env,attr"`
	Cwd      string `xml:"cwd,attr"`
	Requires string `xml:"requires,attr"`
	If       string `xml:"if,attr"`
	Unless   string `xml:"unless,attr"`
	Delay    string `xml:"delay,attr"`
}

// GroupElement is one <group/> element, which may nest further steps and
// groups.
type GroupElement struct {
	Name     string         `xml:"name,attr"`
	Requires string         `xml:"requires,attr"`
	Steps    []StepElement  `xml:"step"`
	Groups   []GroupElement `xml:"group"`
}

// DependencyElement is a post-hoc <dependency step="…" requires="…"/>
// edge, either at the document's top level or nested under an <import>.
type DependencyElement struct {
	Step     string `xml:"step,attr"`
	Requires string `xml:"requires,attr"`
}
