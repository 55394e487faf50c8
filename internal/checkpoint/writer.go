package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nested-ml/nested/internal/tensor"
)

// Save writes a state dictionary to path, replacing any existing file.
//
// Tensors are written in sorted name order so identical state produces
// an identical file. The write goes through a temp file in the same
// directory and is renamed into place, so a crash mid-write never
// leaves a truncated checkpoint at path.
func Save(path string, stateDict map[string]*tensor.RawTensor, run RunMeta, metadata map[string]string) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if len(name) == 0 || len(name) > MaxTensorNameLen {
			return fmt.Errorf("%w: %q", ErrInvalidTensorName, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Run:           run,
		Tensors:       make([]TensorMeta, 0, len(names)),
		Metadata:      metadata,
	}

	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.NumElements()) * 4
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nstd-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	w := io.MultiWriter(tmp, hash)

	if _, err := w.Write([]byte(Magic)); err != nil {
		return fmt.Errorf("checkpoint: write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("checkpoint: write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("checkpoint: write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("checkpoint: write header: %w", err)
	}

	pos := int64(len(Magic)+4+8) + int64(len(headerJSON))
	if padding := (DataAlignment - pos%DataAlignment) % DataAlignment; padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("checkpoint: write padding: %w", err)
		}
	}

	buf := make([]byte, 0, 4096)
	for _, name := range names {
		buf = buf[:0]
		for _, v := range stateDict[name].AsFloat32() {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("checkpoint: write tensor %s: %w", name, err)
		}
	}

	if _, err := tmp.Write(hash.Sum(nil)); err != nil {
		return fmt.Errorf("checkpoint: write checksum: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}
