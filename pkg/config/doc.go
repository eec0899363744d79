// Package config loads service settings.
//
// Load and MustLoad fill a struct from environment variables using
// github.com/caarlos0/env/v11 tags, after loading an optional .env file with
// github.com/joho/godotenv. Results are cached per struct type so every
// package can call Load for its own Config without reparsing.
//
// LoadFile and Decode read YAML definition files (channel and template
// definitions) with gopkg.in/yaml.v3. Environment references like
// ${POSTMARK_SERVER_TOKEN} are expanded before decoding.
package config
