package tensor

import "fmt"

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor representation.
//
// The nested optimization core works exclusively in float32, so RawTensor
// stores a flat float32 buffer in row-major order. The pointer identity of
// a RawTensor is also its identity as a gradient-map key and as a memory
// key: two tensors with equal contents are still distinct entries.
type RawTensor struct {
	data   []float32
	shape  Shape
	device Device
}

// NewRaw creates a new RawTensor with the given shape.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("NewRaw: %w", err)
	}
	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		device: device,
	}, nil
}

// AsFloat32 returns the underlying buffer.
//
// The slice aliases tensor memory: writes are visible to every holder of
// this RawTensor. Optimizers rely on this for in-place parameter updates.
func (t *RawTensor) AsFloat32() []float32 {
	return t.data
}

// Shape returns the tensor dimensions.
func (t *RawTensor) Shape() Shape {
	return t.shape
}

// NumElements returns the total number of elements.
func (t *RawTensor) NumElements() int {
	return t.shape.NumElements()
}

// Device returns the device where the tensor resides.
func (t *RawTensor) Device() Device {
	return t.device
}

// Clone returns a deep copy with fresh (distinct) identity.
func (t *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &RawTensor{data: data, shape: t.shape.Clone(), device: t.device}
}

// String returns a short description of the tensor.
func (t *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v, device=%s)", t.shape, t.device)
}
