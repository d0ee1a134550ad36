// Package configs provides the embedded configuration template for
// ragload.
//
// The template is embedded at build time with go:embed so it ships
// with every distribution of the binary. 'ragload init' writes it to
// the working directory as ragload.yaml; internal/config then layers
// file values and RAGLOAD_* environment variables over the built-in
// defaults.
package configs

import _ "embed"

// ConfigTemplate is the annotated ragload.yaml template written by
// 'ragload init'. Every value is commented out: the built-in defaults
// apply until a line is uncommented.
//
//go:embed ragload.example.yaml
var ConfigTemplate string
