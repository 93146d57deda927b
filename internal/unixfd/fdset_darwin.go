//go:build darwin

// Package unixfd provides platform-specific descriptor constants.
package unixfd

// SetSize is the maximum descriptor value representable in an fd_set
// on Darwin (FD_SETSIZE).
const SetSize = 1024
