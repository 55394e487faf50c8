package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/nested-ml/nested/internal/tensor"
)

// Load reads a .nstd file, verifies its checksum, and returns the
// state dictionary with the header.
func Load(path string, device tensor.Device) (map[string]*tensor.RawTensor, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	header, body, err := parse(data)
	if err != nil {
		return nil, Header{}, fmt.Errorf("checkpoint: %s: %w", path, err)
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), device)
		if err != nil {
			return nil, Header{}, fmt.Errorf("checkpoint: tensor %s: %w", meta.Name, err)
		}
		section := body[meta.Offset : meta.Offset+meta.Size]
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(section[i*4:]))
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, header, nil
}

// ReadHeader reads and validates only the header of a .nstd file. The
// checksum is still verified: the header is not trusted until the whole
// file is.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	header, _, err := parse(data)
	if err != nil {
		return Header{}, fmt.Errorf("checkpoint: %s: %w", path, err)
	}
	return header, nil
}

// parse validates the raw file bytes and returns the header plus the
// tensor data section.
func parse(data []byte) (Header, []byte, error) {
	fixed := int64(len(Magic) + 4 + 8)
	if int64(len(data)) < fixed+ChecksumSize {
		return Header{}, nil, ErrInvalidMagic
	}
	if string(data[:4]) != Magic {
		return Header{}, nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	headerSize := binary.LittleEndian.Uint64(data[8:])
	if headerSize > MaxHeaderSize {
		return Header{}, nil, ErrHeaderTooLarge
	}

	payload := data[:len(data)-ChecksumSize]
	var stored [ChecksumSize]byte
	copy(stored[:], data[len(data)-ChecksumSize:])
	if sha256.Sum256(payload) != stored {
		return Header{}, nil, ErrChecksumMismatch
	}

	headerEnd := fixed + int64(headerSize)
	if headerEnd > int64(len(payload)) {
		return Header{}, nil, ErrHeaderTooLarge
	}
	var header Header
	if err := json.Unmarshal(data[fixed:headerEnd], &header); err != nil {
		return Header{}, nil, fmt.Errorf("parse header: %w", err)
	}

	dataStart := headerEnd
	if padding := (DataAlignment - dataStart%DataAlignment) % DataAlignment; padding > 0 {
		dataStart += padding
	}
	if dataStart > int64(len(payload)) {
		return Header{}, nil, ErrOutOfBounds
	}
	body := payload[dataStart:]

	if err := validateTensors(header.Tensors, int64(len(body))); err != nil {
		return Header{}, nil, err
	}
	return header, body, nil
}

// validateTensors checks names, bounds, shape consistency, and that no
// two tensors share bytes of the data section.
func validateTensors(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensors {
		return ErrTooManyTensors
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var prev *TensorMeta
	for i := range sorted {
		m := &sorted[i]
		if len(m.Name) == 0 || len(m.Name) > MaxTensorNameLen {
			return fmt.Errorf("%w: %q", ErrInvalidTensorName, m.Name)
		}
		if m.Offset < 0 || m.Size < 0 || m.Offset+m.Size > dataSize {
			return fmt.Errorf("%w: %s", ErrOutOfBounds, m.Name)
		}
		if want := int64(tensor.Shape(m.Shape).NumElements()) * 4; want != m.Size {
			return fmt.Errorf("%w: %s: shape %v needs %d bytes, header says %d",
				ErrOutOfBounds, m.Name, m.Shape, want, m.Size)
		}
		if prev != nil && m.Offset < prev.Offset+prev.Size {
			return fmt.Errorf("%w: %s and %s", ErrOffsetOverlap, prev.Name, m.Name)
		}
		prev = m
	}
	return nil
}
