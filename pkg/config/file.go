package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile decodes the YAML file at path into v.
// ${VAR} references in the file are expanded from the environment before decoding,
// so secrets such as provider tokens stay out of the file itself.
// Unknown keys are rejected.
func LoadFile[T any](path string, v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrReadingFile, err)
	}
	return Decode([]byte(os.ExpandEnv(string(raw))), v)
}

// Decode decodes YAML bytes into v, rejecting unknown keys.
func Decode[T any](data []byte, v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodingFile, err)
	}
	return nil
}
