package config

import (
	"reflect"

	fieldvalidator "github.com/go-playground/validator/v10"
)

// structValidator enforces struct-tag validation (required options, enum
// membership, numeric ranges) on the raw decoded job and datasource
// structs, before any template rendering or datasource lookup runs.
var structValidator = newStructValidator()

func newStructValidator() *fieldvalidator.Validate {
	v := fieldvalidator.New()
	// field names in errors should read as the ini option key, not the Go
	// struct field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}
