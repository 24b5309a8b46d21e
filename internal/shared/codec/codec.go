// Package codec decodes raw configuration payloads into caller-supplied
// target types. Implementations are stateless and safe for concurrent use.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies the encoding of a configuration payload.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatXML  Format = "xml"
	FormatINI  Format = "ini"

	// FormatEnv is the dotenv KEY=VALUE format. Targets map keys through
	// `env` struct tags, falling back to case-insensitive field names.
	FormatEnv Format = "env"
)

// ErrUnsupportedFormat is returned for a Format outside the known set.
var ErrUnsupportedFormat = errors.New("codec: unsupported format")

// Decoder is the interface consumers depend on for decoding payloads.
type Decoder interface {
	// Decode parses raw into target, which must be a non-nil pointer.
	Decode(raw []byte, format Format, target any) error
}

// DecodeFunc decodes a payload of one format into target.
type DecodeFunc func(raw []byte, target any) error

var _ Decoder = (*decoder)(nil)

type decoder struct {
	funcs map[Format]DecodeFunc
}

// New creates a Decoder with every built-in format registered.
func New() Decoder {
	return &decoder{
		funcs: map[Format]DecodeFunc{
			FormatJSON: decodeJSON,
			FormatYAML: decodeYAML,
			FormatTOML: decodeTOML,
			FormatXML:  decodeXML,
			FormatINI:  decodeINI,
			FormatEnv:  decodeEnv,
		},
	}
}

func (d *decoder) Decode(raw []byte, format Format, target any) error {
	fn, ok := d.funcs[format]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
	if target == nil {
		return fmt.Errorf("codec: decode %s: nil target", format)
	}
	if err := fn(raw, target); err != nil {
		return fmt.Errorf("codec: decode %s: %w", format, err)
	}
	return nil
}

// Valid reports whether f is one of the built-in formats.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatYAML, FormatTOML, FormatXML, FormatINI, FormatEnv:
		return true
	default:
		return false
	}
}

func (f Format) String() string { return string(f) }

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(value string) (Format, error) {
	normalized := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(value)), ".")

	switch normalized {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "xml":
		return FormatXML, nil
	case "ini", "cfg":
		return FormatINI, nil
	case "env", "dotenv":
		return FormatEnv, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, value)
	}
}

// FormatFromPath infers the Format from the file extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}
