//go:build !windows

package files

func isSharingViolation(error) bool { return false }
