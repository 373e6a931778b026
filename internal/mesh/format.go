package mesh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is an output mesh file format.
type Format string

const (
	FormatOBJ Format = "obj"
	FormatGLB Format = "glb"
	FormatPLY Format = "ply"
	FormatSTL Format = "stl"
	FormatFBX Format = "fbx"
)

// IntermediateFormat is the neutral interchange format every stage writes
// before conversion and the format conversions degrade to.
const IntermediateFormat = FormatOBJ

// ErrUnsupportedFormat reports a format the native writers cannot emit.
var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(value string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "."))
	switch f {
	case FormatOBJ, FormatGLB, FormatPLY, FormatSTL, FormatFBX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }

// String implements fmt.Stringer.
func (f Format) String() string { return string(f) }

// NativeWritable reports whether WriteFile can emit the format.
func (f Format) NativeWritable() bool {
	switch f {
	case FormatOBJ, FormatGLB, FormatPLY, FormatSTL:
		return true
	default:
		return false
	}
}

// WriteFile writes m to path in the given format. The file is written to a
// sibling temp path and renamed so readers never observe a partial file.
func WriteFile(path string, m *Mesh, format Format) error {
	if !format.NativeWritable() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if format == FormatGLB {
		return writeGLBFile(path, m)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", format, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	switch format {
	case FormatOBJ:
		err = WriteOBJ(tmp, m)
	case FormatPLY:
		err = WritePLY(tmp, m)
	case FormatSTL:
		err = WriteSTL(tmp, m)
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", format, err)
	}
	return os.Rename(tmpPath, path)
}
