package cdr

import (
	"errors"
	"fmt"
)

var ErrMetadataUnreachable = errors.New("metadata unreachable")

// MetadataUnreachableError is returned when the DAS document of a dataset
// URL cannot be fetched.
type MetadataUnreachableError struct {
	URL string
	Err error
}

func (e *MetadataUnreachableError) Error() string {
	return fmt.Sprintf("metadata of %s unreachable: %v", e.URL, e.Err)
}

func (e *MetadataUnreachableError) Unwrap() error {
	return e.Err
}

func (e *MetadataUnreachableError) Is(target error) bool {
	return target == ErrMetadataUnreachable
}
