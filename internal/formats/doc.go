// Package formats holds the built-in parse strategies and the default
// extension tables. Binary formats (images, audio, video) are not decoded here:
// their parse strategy only verifies the local file and hands back a File
// handle for the host's format-specific decoder. Scripts, fonts and bundles
// need host collaborators and are supplied by the caller through Builtins.
package formats
