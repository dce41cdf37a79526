// Package schema describes the fields a collection's documents may
// carry. A Catalog is the authoritative view of those fields and backs
// startup validation of key configurations.
package schema

import (
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
)

// Field types understood by the routing pipeline. Time fields are
// normalized from free-form strings during ingest.
const (
	TypeString = "string"
	TypeText   = "text"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeTime   = "time"
)

// Field declares a single document field. The HCL tags let collection
// blocks in the service configuration embed fields directly.
type Field struct {
	Name     string `hcl:"name,label"`
	Type     string `hcl:"type,optional"`
	Indexed  bool   `hcl:"indexed,optional"`
	Required bool   `hcl:"required,optional"`
}

// Validate returns an error if the field declaration is malformed.
func (f Field) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Type, validation.In(
			TypeString, TypeText, TypeInt, TypeFloat, TypeBool, TypeTime,
		)),
	)
}

// Catalog is an immutable, name-addressable set of field declarations.
type Catalog struct {
	fields map[string]Field
}

// NewCatalog builds a catalog from field declarations, accumulating all
// validation problems rather than stopping at the first.
func NewCatalog(fields []Field) (*Catalog, error) {
	var result *multierror.Error

	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("field %q: %w", f.Name, err))
			continue
		}
		if _, dup := byName[f.Name]; dup {
			result = multierror.Append(result,
				fmt.Errorf("field %q declared more than once", f.Name))
			continue
		}
		if f.Type == "" {
			f.Type = TypeString
		}
		byName[f.Name] = f
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Catalog{fields: byName}, nil
}

// Exists reports whether the catalog declares the named field.
func (c *Catalog) Exists(field string) bool {
	_, ok := c.fields[field]
	return ok
}

// IsIndexed reports whether the named field is declared as indexed.
// Unknown fields are never indexed.
func (c *Catalog) IsIndexed(field string) bool {
	return c.fields[field].Indexed
}

// Lookup returns the declaration for the named field.
func (c *Catalog) Lookup(field string) (Field, bool) {
	f, ok := c.fields[field]
	return f, ok
}

// Fields returns all declarations ordered by field name.
func (c *Catalog) Fields() []Field {
	out := make([]Field, 0, len(c.fields))
	for _, f := range c.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of declared fields.
func (c *Catalog) Len() int {
	return len(c.fields)
}
