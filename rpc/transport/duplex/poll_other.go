//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package duplex

import "errors"

const pollSupported = false

var errPollUnsupported = errors.New("poll is not supported on this platform")

func poll(fds []int) ([]bool, error) {
	return nil, errPollUnsupported
}

func pollWrite(mainFd, sideFd int) (bool, bool, error) {
	return false, false, errPollUnsupported
}

func available(fd int) (int, error) {
	return 0, errPollUnsupported
}

func readable(fd int) bool {
	return false
}
