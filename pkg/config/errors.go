package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrNilPointer is returned when a nil pointer is provided to a loader.
	ErrNilPointer = errors.New("config: nil pointer")

	// ErrReadingFile is returned when a definition file cannot be read.
	ErrReadingFile = errors.New("config: failed to read file")

	// ErrDecodingFile is returned when a definition file is not valid YAML for the target type.
	ErrDecodingFile = errors.New("config: failed to decode file")
)
