//go:build !unix

package poll

import "errors"

var errUnsupported = errors.New("framestream: non-blocking poll unsupported on this platform")

func pollFD(int) (bool, error) {
	return false, errUnsupported
}
