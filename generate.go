//go:build ignore

// Package famgraph provides code generation directives for the entire project.
package main

// Generate protobuf code for all proto packages
//go:generate go generate ./proto/memory_server
