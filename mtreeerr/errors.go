// Package mtreeerr defines the error kinds shared by every mtree package.
//
// Callers distinguish kinds with errors.Is against the sentinels below;
// packages wrap them with context via fmt.Errorf("%w: ...", ErrKind, ...).
package mtreeerr

import "errors"

var (
	// ErrIO marks failure to open, read, or write the backing file.
	ErrIO = errors.New("mtree: io error")

	// ErrCorruption marks an invalid header, an out-of-range page number,
	// or a cursor pointing at page 0 where a page is required.
	ErrCorruption = errors.New("mtree: corruption")

	// ErrMisuse marks an operation invoked out of sequence or against an
	// invariant the caller controls (insert before create, missing
	// comparator, freeing a page past lastPageNum, ...).
	ErrMisuse = errors.New("mtree: misuse")

	// ErrArgument marks a caller-supplied argument outside its legal
	// range (bad order, zero recSize, bad key/cursor index).
	ErrArgument = errors.New("mtree: invalid argument")
)
