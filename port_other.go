//go:build !linux

package serial

import "fmt"

const nativeSupported = false

func openNative(cfg Config) (Port, error) {
	return nil, fmt.Errorf("%w: native driver is linux-only, use %q", ErrUnsupported, DriverPortable)
}
