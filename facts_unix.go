//go:build unix

package monit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func unameFacts() (Facts, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Facts{}, fmt.Errorf("uname: %w", err)
	}
	return Facts{
		KernelName:    unix.ByteSliceToString(uts.Sysname[:]),
		KernelRelease: unix.ByteSliceToString(uts.Release[:]),
		KernelVersion: unix.ByteSliceToString(uts.Version[:]),
		Machine:       unix.ByteSliceToString(uts.Machine[:]),
	}, nil
}
