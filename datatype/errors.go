package datatype

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrUnsupported is returned for recognized datatypes without a caster.
	// Callers skip the value rather than failing the resource.
	ErrUnsupported = errors.New("unsupported datatype")

	// ErrUnknownDatatype is returned for datatypes that are not recognized
	// at all. It signals a broken ontology or configuration.
	ErrUnknownDatatype = errors.New("unknown datatype")
)

// CastError is a syntax or sign violation. It is a hard validation failure.
type CastError struct {
	Value    string
	Datatype string
	Reason   string
}

func newCastError(value, datatype, reason string) *CastError {
	return &CastError{Value: value, Datatype: datatype, Reason: reason}
}

func (e *CastError) Error() string {
	return fmt.Sprintf("value does not match data type %s: %q %s", e.Datatype, e.Value, e.Reason)
}

// UnsupportedError carries the datatype that has no caster.
type UnsupportedError struct {
	Datatype string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported datatype %s", e.Datatype)
}

// Is makes errors.Is(err, ErrUnsupported) succeed.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// UnknownDatatypeError carries the unrecognized datatype.
type UnknownDatatypeError struct {
	Datatype string
}

func (e *UnknownDatatypeError) Error() string {
	return fmt.Sprintf("unknown datatype %s", e.Datatype)
}

// Is makes errors.Is(err, ErrUnknownDatatype) succeed.
func (e *UnknownDatatypeError) Is(target error) bool { return target == ErrUnknownDatatype }

// IsCastError reports whether err is a syntax or sign violation.
func IsCastError(err error) bool {
	var ce *CastError
	return errors.As(err, &ce)
}
