// Package machinedesc loads the CPU portion of a machine description
// document (§6 "a structured document keyed by component name"). Only the
// `cpu` key is interpreted; every other top-level key is preserved opaquely
// for the embedding machine's own device loaders.
package machinedesc

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

// CPUDesc is the decoded `cpu` section: model name and auto-start flag.
type CPUDesc struct {
	Model     string `yaml:"model"`
	AutoStart bool   `yaml:"autoStart"`
}

// Document is a parsed machine description: the interpreted CPU section
// plus every other top-level key, untouched.
type Document struct {
	CPU   CPUDesc
	Extra map[string]any
}

type rawDoc struct {
	CPU CPUDesc `yaml:"cpu"`
}

// Load parses a machine description document. autoStart is always forced to
// false (§6): a programmatically loaded description never self-starts the
// core without an explicit caller decision.
func Load(data []byte) (Document, error) {
	var raw rawDoc
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("machinedesc: decode: %w", err)
	}
	var extra map[string]any
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Document{}, fmt.Errorf("machinedesc: decode extras: %w", err)
	}
	delete(extra, "cpu")
	raw.CPU.AutoStart = false
	return Document{CPU: raw.CPU, Extra: extra}, nil
}

// ModelNames maps the machine-description `model` string to the x86.Model
// enum's canonical spelling, kept here (rather than importing package x86)
// so machinedesc has no dependency on the core itself -- callers resolve the
// name against x86.Model.String() themselves.
var ModelNames = []string{"8086", "8088", "80186", "80188", "80286", "80386"}
