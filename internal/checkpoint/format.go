// Package checkpoint persists training state to disk in the .nstd
// binary format.
//
// File layout:
//
//	magic "NSTD" (4 bytes)
//	format version, uint32 little-endian (4 bytes)
//	header size, uint64 little-endian (8 bytes)
//	header JSON
//	zero padding to a 64-byte boundary
//	tensor data, float32 little-endian, in header order
//	SHA-256 checksum of everything above (32 bytes)
//
// A checkpoint is a flat map from names to tensors plus run metadata.
// Callers namespace the map themselves: the trainer stores model
// parameters under "model." and optimizer state under "opt.".
package checkpoint

import "time"

// Format constants.
const (
	Magic         = "NSTD"
	FormatVersion = 1
	DataAlignment = 64 // Tensor data starts on a 64-byte boundary.
	ChecksumSize  = 32 // SHA-256.

	// Header sanity limits. A hand-crafted header that exceeds them is
	// rejected before any allocation is sized from it.
	MaxHeaderSize    = 16 << 20
	MaxTensors       = 65536
	MaxTensorNameLen = 256
)

// Header is the JSON header of a .nstd file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Run           RunMeta           `json:"run"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RunMeta records where in training the checkpoint was taken.
type RunMeta struct {
	RunID string  `json:"run_id"`
	Step  int     `json:"step"`
	Loss  float64 `json:"loss"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // Bytes from the start of the data section.
	Size   int64  `json:"size"`   // Bytes.
}
