package rangevector

import "github.com/pkg/errors"

// ColumnInfo names and types one column of a ResultSchema.
type ColumnInfo struct {
	Name string
	Type ColumnType
}

// ResultSchema is the ordered column layout shared by every range vector
// in one query result. FixedVectorLen records a fixed presented row
// length when a producer sets it; none of the aggregators in this
// repository do, so it is nil unless set explicitly.
type ResultSchema struct {
	Columns        []ColumnInfo
	FixedVectorLen *int
}

// EmptySchema is the schema with no columns; it is the identity element
// of ReduceSchemas, acting as a placeholder during reduction until the
// first non-empty schema arrives.
func EmptySchema() ResultSchema { return ResultSchema{} }

func (s ResultSchema) IsEmpty() bool { return len(s.Columns) == 0 }

func (s ResultSchema) Equals(o ResultSchema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return fixedLenEquals(s.FixedVectorLen, o.FixedVectorLen)
}

func fixedLenEquals(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameColumnTypes reports whether two schemas have the same column count
// and types, ignoring names and FixedVectorLen: the looser comparison
// IgnoreFixedVectorLenAndColumnNames reduction uses.
func sameColumnTypes(s, o ResultSchema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i].Type != o.Columns[i].Type {
			return false
		}
	}
	return true
}

// SchemaMismatchError is raised when non-empty schemas being reduced
// disagree. It is fatal for the query that triggered it.
type SchemaMismatchError struct {
	First, Second ResultSchema
}

func (e *SchemaMismatchError) Error() string {
	return "schema mismatch: incompatible result schemas across children"
}

// SchemaReducer combines one more schema into an accumulated schema.
// Calling it repeatedly over S1...Sn in any order must produce the same
// result or fail.
type SchemaReducer func(acc, next ResultSchema) (ResultSchema, error)

// ReduceSchemas is the default reducer: the first non-empty schema wins;
// every subsequent non-empty schema must equal it exactly.
func ReduceSchemas(schemas ...ResultSchema) (ResultSchema, error) {
	return reduceWith(DefaultSchemaReducer, schemas)
}

// DefaultSchemaReducer implements the "first non-empty wins, must match
// exactly" rule as a single reduce step, usable directly with a fold.
func DefaultSchemaReducer(acc, next ResultSchema) (ResultSchema, error) {
	if next.IsEmpty() {
		return acc, nil
	}
	if acc.IsEmpty() {
		return next, nil
	}
	if !acc.Equals(next) {
		return ResultSchema{}, errors.WithStack(&SchemaMismatchError{First: acc, Second: next})
	}
	return acc, nil
}

// IgnoreFixedVectorLenAndColumnNamesReducer is the alternate reducer for
// operators that concatenate shards: schemas must agree on column types
// only, and FixedVectorLen is summed rather than compared.
func IgnoreFixedVectorLenAndColumnNamesReducer(acc, next ResultSchema) (ResultSchema, error) {
	if next.IsEmpty() {
		return acc, nil
	}
	if acc.IsEmpty() {
		return next, nil
	}
	if !sameColumnTypes(acc, next) {
		return ResultSchema{}, errors.WithStack(&SchemaMismatchError{First: acc, Second: next})
	}
	merged := acc
	merged.FixedVectorLen = sumFixedLen(acc.FixedVectorLen, next.FixedVectorLen)
	return merged, nil
}

func sumFixedLen(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	sum := 0
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

func reduceWith(reducer SchemaReducer, schemas []ResultSchema) (ResultSchema, error) {
	acc := EmptySchema()
	for _, s := range schemas {
		var err error
		acc, err = reducer(acc, s)
		if err != nil {
			return ResultSchema{}, err
		}
	}
	return acc, nil
}

// ReduceSchemasWith folds schemas through an explicit reducer, used by
// NonLeaf composers that opt into IgnoreFixedVectorLenAndColumnNamesReducer.
func ReduceSchemasWith(reducer SchemaReducer, schemas ...ResultSchema) (ResultSchema, error) {
	return reduceWith(reducer, schemas)
}
