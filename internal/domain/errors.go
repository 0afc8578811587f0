package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownParty indicates a transaction or relationship references a missing party.
	ErrUnknownParty = errors.New("unknown party")
	// ErrDuplicateID indicates an id collision on create.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrMalformedAttribute marks a record whose attributes cannot be interpreted.
	ErrMalformedAttribute = errors.New("malformed attribute")
	// ErrStoreUnavailable indicates the graph store cannot be reached.
	ErrStoreUnavailable = errors.New("graph store unavailable")
	// ErrInference indicates one or more inference passes failed.
	ErrInference = errors.New("inference failed")
	// ErrInvalidArgument indicates a caller supplied an out-of-range argument.
	ErrInvalidArgument = errors.New("invalid argument")
)
