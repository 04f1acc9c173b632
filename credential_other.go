//go:build !unix

package monit

import (
	"fmt"
	"os/exec"
	"runtime"
)

func applyCredential(_ *exec.Cmd, userName, groupName string) error {
	if userName == "" && groupName == "" {
		return nil
	}
	return fmt.Errorf("%w: running as %s:%s on %s", ErrUnsupportedPlatform, userName, groupName, runtime.GOOS)
}

func lookupIDs(userName, groupName string) (int, int, error) {
	if userName == "" && groupName == "" {
		return -1, -1, nil
	}
	return 0, 0, fmt.Errorf("%w: ownership %s:%s on %s", ErrUnsupportedPlatform, userName, groupName, runtime.GOOS)
}
