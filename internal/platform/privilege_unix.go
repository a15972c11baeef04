//go:build !windows

package platform

import "golang.org/x/sys/unix"

func processElevated() bool {
	return unix.Geteuid() == 0
}
