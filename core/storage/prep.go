package storage

import (
	"github.com/artpar/apigen/core/convention"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/validation"
	"github.com/artpar/apigen/pkg/apierr"
)

// Field names every adapter maintains.
const (
	FieldID       = convention.FieldID
	FieldCreated  = convention.FieldCreated
	FieldModified = convention.FieldModified
)

// UniqueViolation is the error for a write that collides on a unique field.
func UniqueViolation(field string) error {
	return apierr.Validation(`"%s" property must be unique`, field)
}

// PrepareCreate shapes create input: strict regularization, defaults and
// required checks. Adapter-maintained fields are dropped from the input.
func PrepareCreate(s schema.Schema, data Record) (Record, error) {
	return validation.PrepareCreate(s, writable(data))
}

// PrepareUpdate shapes partial update input.
func PrepareUpdate(s schema.Schema, data Record) Record {
	return validation.PrepareUpdate(s, writable(data))
}

// PrepareQuery casts query values and operator operands to the schema.
func PrepareQuery(s schema.Schema, q Query) Query {
	return validation.RegularizeQuery(s, q)
}

func writable(data Record) Record {
	out := make(Record, len(data))
	for k, v := range data {
		switch k {
		case FieldID, FieldCreated, FieldModified:
			continue
		}
		out[k] = v
	}
	return out
}

// CheckUnique fails when data would give a unique field a value already
// held by a record in set. Records whose id is in targets are the ones
// being written and are skipped. Writing one unique value to more than one
// target is itself a collision.
func CheckUnique(s schema.Schema, data Record, set []Record, targets map[string]bool) error {
	for _, name := range s.Unique() {
		value, ok := data[name]
		if !ok {
			continue
		}
		if len(targets) > 1 {
			return UniqueViolation(name)
		}
		for _, rec := range set {
			if targets[IDString(rec[FieldID])] {
				continue
			}
			if current, present := rec[name]; present && Equal(current, value) {
				return UniqueViolation(name)
			}
		}
	}
	return nil
}
