// Package planspec compiles the textual operator trees submitted through the
// "execute plan" bypass into plan nodes.
//
// A payload is a YAML (or JSON) document:
//
//	op: join
//	algorithm: batch_nested_loop
//	kind: inner
//	condition: "o.user_id = u.id"
//	variables: 2
//	inputs:
//	  - {op: scan, table: test.users, alias: u}
//	  - {op: scan, table: orders, alias: o}
//
// Expressions are SQL text and are resolved against the columns of the operator's
// inputs.
package planspec

import (
	"strings"

	"gopkg.in/yaml.v3"
	"mit.edu/dsg/sqlroute/common"
)

// Spec is one operator of a plan description.
type Spec struct {
	Op string `yaml:"op"`

	// scan
	Table string `yaml:"table"`
	Alias string `yaml:"alias"`
	// Columns restricts a scan to the named columns; for values it names the output
	// columns.
	Columns []string `yaml:"columns"`

	// values
	Rows [][]string `yaml:"rows"`

	// filter, join
	Condition string `yaml:"condition"`

	// project: "expr [as alias]"
	Exprs []string `yaml:"exprs"`

	// sort: "expr [asc|desc]"
	Order []string `yaml:"order"`

	// limit
	Limit  *int64 `yaml:"limit"`
	Offset int64  `yaml:"offset"`

	// aggregate: group keys and "fn(expr) [as alias]"
	Group []string `yaml:"group"`
	Aggs  []string `yaml:"aggs"`

	// join
	Algorithm string `yaml:"algorithm"`
	Kind      string `yaml:"kind"`
	Variables int    `yaml:"variables"`

	Inputs []*Spec `yaml:"inputs"`
}

// Parse decodes a plan description. Unknown fields are rejected.
func Parse(payload string) (*Spec, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, common.NewError(common.ParseError, "empty plan")
	}
	dec := yaml.NewDecoder(strings.NewReader(payload))
	dec.KnownFields(true)
	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, common.NewError(common.ParseError, "bad plan: %v", err)
	}
	return &spec, nil
}
