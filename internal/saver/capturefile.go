package saver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/sigscope/sigscope/internal/errors"
)

// CaptureFileMode is the permission of newly created capture files.
const CaptureFileMode os.FileMode = 0o600

// ErrInsufficientSpace is returned when the record directory has less free
// space than required.
var ErrInsufficientSpace = errors.NewStd("insufficient free space for capture")

// CaptureFileName returns the capture file base name for a sample rate and
// center frequency in Hz.
func CaptureFileName(sampleRate uint32, freq float64) string {
	return fmt.Sprintf("sigdigger_%d_%s_float32_iq.raw",
		sampleRate, strconv.FormatFloat(freq, 'f', -1, 64))
}

// CaptureFile describes an opened capture file.
type CaptureFile struct {
	*os.File
	Path string
}

// OpenCaptureFile creates (or truncates) the capture file in dir. When
// minFree is non-zero the directory must have at least that many free bytes.
func OpenCaptureFile(dir string, sampleRate uint32, freq float64, minFree uint64) (*CaptureFile, error) {
	path := filepath.Join(dir, CaptureFileName(sampleRate, freq))

	if minFree > 0 {
		usage, err := disk.Usage(dir)
		if err != nil {
			return nil, errors.New(err).
				Component("saver").
				Category(errors.CategoryDiskUsage).
				Context("directory", dir).
				Build()
		}
		if usage.Free < minFree {
			return nil, errors.New(ErrInsufficientSpace).
				Component("saver").
				Category(errors.CategoryDiskUsage).
				Context("directory", dir).
				Context("free_bytes", usage.Free).
				Context("required_bytes", minFree).
				Build()
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, CaptureFileMode)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	return &CaptureFile{File: f, Path: path}, nil
}
