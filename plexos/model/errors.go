package model

import "errors"

// Resolution and mutation failures surface as one of these sentinels,
// wrapped with context. Match with errors.Is.
var (
	ErrNoSuchClass      = errors.New("no such class")
	ErrNoSuchObject     = errors.New("no such object")
	ErrNoSuchAttribute  = errors.New("no such attribute")
	ErrNoSuchProperty   = errors.New("no such property")
	ErrNoSuchCollection = errors.New("no such collection")
	ErrNoSuchCategory   = errors.New("no such category")
	ErrNoSuchConfig     = errors.New("no such config element")

	ErrDuplicateDefinition = errors.New("duplicate property definition")
	ErrDuplicateName       = errors.New("duplicate object name")
	ErrDuplicateCategory   = errors.New("duplicate category")

	// ErrArityMismatch reports a scalar write to a list-valued property or
	// the reverse, including a list of the wrong length.
	ErrArityMismatch = errors.New("value arity does not match stored data")

	// ErrNoData reports that property resolution matched zero data rows.
	ErrNoData = errors.New("no data for property")

	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMaskValueInvalid reports a written value that is not one of the
	// labels defined by the property's input mask.
	ErrMaskValueInvalid = errors.New("value not in property input mask")
)
