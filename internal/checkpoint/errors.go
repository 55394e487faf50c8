package checkpoint

import "errors"

// Common errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrTooManyTensors     = errors.New("too many tensors in file")
	ErrInvalidTensorName  = errors.New("invalid tensor name")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrOffsetOverlap      = errors.New("tensor offsets overlap")
	ErrTensorNotFound     = errors.New("tensor not found")
)
