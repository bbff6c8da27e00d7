// Package validation shapes external input to a model schema before it
// touches storage: type casting, default values and required-field checks.
package validation

import (
	"strings"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/pkg/apierr"
	"github.com/artpar/apigen/pkg/deepcopy"
)

// Regularize casts every key of raw that is declared in s to its declared
// type. Undeclared keys are dropped. When a cast fails the key is dropped in
// strict mode and kept uncast otherwise.
func Regularize(s schema.Schema, raw map[string]any, strict bool) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		field, ok := s[key]
		if !ok {
			continue
		}

		if cast, ok := Cast(value, field.Type); ok {
			out[key] = cast
		} else if !strict {
			out[key] = value
		}
	}
	return out
}

// RegularizeQuery is Regularize for query predicates. Operator maps keep
// their operators and have each operand cast to the field type, including
// every element of $in and $nin lists. Failed operand casts keep the operand.
func RegularizeQuery(s schema.Schema, q map[string]any) map[string]any {
	out := make(map[string]any, len(q))
	for key, value := range q {
		field, ok := s[key]
		if !ok {
			continue
		}

		ops, isOps := OperatorMap(value)
		if !isOps {
			if cast, ok := Cast(value, field.Type); ok {
				out[key] = cast
			} else {
				out[key] = value
			}
			continue
		}

		castOps := make(map[string]any, len(ops))
		for op, operand := range ops {
			castOps[op] = castOperand(op, operand, field.Type)
		}
		out[key] = castOps
	}
	return out
}

func castOperand(op string, operand any, t schema.FieldType) any {
	if op == "$in" || op == "$nin" {
		list, ok := operand.([]any)
		if !ok {
			return operand
		}
		cast := make([]any, len(list))
		for i, e := range list {
			cast[i] = castOrKeep(e, t)
		}
		return cast
	}
	return castOrKeep(operand, t)
}

func castOrKeep(v any, t schema.FieldType) any {
	if cast, ok := Cast(v, t); ok {
		return cast
	}
	return v
}

// OperatorMap reports whether v is a non-empty map whose keys all start
// with "$", and returns it.
func OperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// ApplyDefaults fills absent fields that declare a default. Defaults are
// cast to the field type and deep-copied so records never share them.
func ApplyDefaults(s schema.Schema, data map[string]any) map[string]any {
	for _, name := range s.Names() {
		field := s[name]
		if !field.HasDefault() {
			continue
		}
		if _, present := data[name]; present {
			continue
		}
		data[name] = castOrKeep(deepcopy.Value(field.Default), field.Type)
	}
	return data
}

// CheckRequired fails on the first required field (in name order) that is
// absent from data.
func CheckRequired(s schema.Schema, data map[string]any) error {
	for _, name := range s.Names() {
		if !s[name].Required {
			continue
		}
		if _, present := data[name]; !present {
			return apierr.Validation(`"%s" property is required`, name)
		}
	}
	return nil
}

// PrepareCreate regularizes data strictly, applies defaults and checks
// required fields. At least one declared property must survive.
func PrepareCreate(s schema.Schema, data map[string]any) (map[string]any, error) {
	out := Regularize(s, data, true)
	if len(out) == 0 {
		return nil, apierr.Validation("Must provide at least one valid property")
	}

	out = ApplyDefaults(s, out)
	if err := CheckRequired(s, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PrepareUpdate regularizes a partial update strictly.
func PrepareUpdate(s schema.Schema, data map[string]any) map[string]any {
	return Regularize(s, data, true)
}
