// Package input loads the bytes to disassemble from a file, standard input
// or hex words given on the command line.
package input

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNoBytes = errors.New("input: no bytes to disassemble")
	ErrBadHex  = errors.New("input: bad hex byte")
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Source is a loaded input. ELF files are only sniffed here; their
// contents are read through elfx.
type Source struct {
	Name string
	Data []byte
	ELF  bool
}

// Load reads path, or r when path is empty or "-". Gzip and zip wrappers
// are removed. A path naming an ELF file is returned with ELF set and no
// data.
func Load(path string, r io.Reader) (*Source, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return finish("<stdin>", data)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if IsELF(data) {
		return &Source{Name: path, ELF: true}, nil
	}
	return finish(path, data)
}

func finish(name string, data []byte) (*Source, error) {
	data, err := Unwrap(data, name)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBytes, name)
	}
	return &Source{Name: name, Data: data}, nil
}

// IsELF reports whether data starts with the ELF magic.
func IsELF(data []byte) bool {
	return bytes.HasPrefix(data, elfMagic)
}

// Unwrap decompresses gzip data and extracts the first member of a zip
// archive. Anything else is returned as is.
func Unwrap(data []byte, name string) ([]byte, error) {
	if len(data) < 2 {
		return data, nil
	}

	// Check for gzip magic number (0x1F 0x8B)
	if data[0] == 0x1f && data[1] == 0x8b {
		slog.Debug("Detected gzip compression", "file", name)
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip decompression failed: %w", err)
		}
		slog.Debug("Gzip decompression successful", "file", name,
			"original_size", len(data), "decompressed_size", len(decompressed))
		return decompressed, nil
	}

	// Check for ZIP archive (PK\x03\x04)
	if len(data) >= 4 && bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		slog.Debug("Detected ZIP archive", "file", name)
		reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("zip reader creation failed: %w", err)
		}
		if len(reader.File) == 0 {
			return nil, fmt.Errorf("%w: %s is an empty zip archive", ErrNoBytes, name)
		}

		file := reader.File[0]
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open file in zip: %w", err)
		}
		defer rc.Close()

		decompressed, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read file from zip: %w", err)
		}
		slog.Debug("ZIP decompression successful", "file", name,
			"archive_file", file.Name,
			"original_size", len(data), "decompressed_size", len(decompressed))
		return decompressed, nil
	}

	return data, nil
}

// ParseHex converts hex words to bytes. Each argument may hold several
// words separated by spaces or commas. A word is one byte with an optional
// 0x prefix, or an even-length run of digits such as 4889d8.
func ParseHex(args []string) ([]byte, error) {
	var out []byte
	for _, arg := range args {
		words := strings.FieldsFunc(arg, func(r rune) bool {
			return r == ' ' || r == ',' || r == '\t' || r == '\n'
		})
		for _, w := range words {
			digits := strings.TrimPrefix(strings.TrimPrefix(w, "0x"), "0X")
			if len(digits) > 2 && len(digits)%2 == 0 {
				for i := 0; i < len(digits); i += 2 {
					b, err := strconv.ParseUint(digits[i:i+2], 16, 8)
					if err != nil {
						return nil, fmt.Errorf("%w %q", ErrBadHex, w)
					}
					out = append(out, byte(b))
				}
				continue
			}
			b, err := strconv.ParseUint(digits, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w %q", ErrBadHex, w)
			}
			out = append(out, byte(b))
		}
	}
	if len(out) == 0 {
		return nil, ErrNoBytes
	}
	return out, nil
}
