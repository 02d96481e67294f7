// Package filesystem provides types.FS implementations: one backed by the
// operating system and one backed by an afero filesystem for tests.
package filesystem
