/*
Package schema defines the declarative model definitions the engine builds from.

A model definition names the model, says whether its CRUD routes are public,
and maps each property to a field type:

	name: Book
	public: true

	properties:
	  title:     string
	  pages:     number
	  published: { type: date }
	  isbn:      { type: string, unique: true, required: true }
	  notes:     { type: string, hidden: true }
	  tags:      { type: array, default: [] }

# Field Types

Every field resolves to one of six types:

  - string:  text
  - number:  any numeric value, stored as float64
  - boolean: true or false
  - date:    an ISO-8601 timestamp with a zone, stored as time.Time
  - object:  a nested JSON object
  - array:   a JSON array

A bare type name is shorthand for a descriptor with only the type set.
Type names are case-insensitive.

# Reserved Fields

The id field belongs to the storage adapter and may not be declared.
The created and modified timestamps are merged in by the engine as a base
schema underneath the author's properties.
*/
package schema
