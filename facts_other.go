//go:build !unix

package monit

import (
	"fmt"
	"runtime"
)

func unameFacts() (Facts, error) {
	return Facts{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
}
