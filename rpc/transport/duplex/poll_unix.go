//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package duplex

import (
	"golang.org/x/sys/unix"
)

const pollSupported = true

// poll blocks until at least one of fds is readable or hung up
func poll(fds []int) ([]bool, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	if err := pollRetry(pfds); err != nil {
		return nil, err
	}
	ready := make([]bool, len(fds))
	for i := range pfds {
		ready[i] = pfds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	}
	return ready, nil
}

// pollWrite blocks until mainFd accepts data or sideFd is readable. A
// negative sideFd is not polled. A hung up or failed mainFd counts as
// writable so the following write reports the error.
func pollWrite(mainFd, sideFd int) (writable, sideReady bool, err error) {
	pfds := []unix.PollFd{{Fd: int32(mainFd), Events: unix.POLLOUT}}
	if sideFd >= 0 {
		pfds = append(pfds, unix.PollFd{Fd: int32(sideFd), Events: unix.POLLIN})
	}
	if err := pollRetry(pfds); err != nil {
		return false, false, err
	}
	writable = pfds[0].Revents&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0
	if len(pfds) > 1 {
		sideReady = pfds[1].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	}
	return writable, sideReady, nil
}

func pollRetry(pfds []unix.PollFd) error {
	for {
		_, err := unix.Poll(pfds, -1)
		if err != unix.EINTR {
			return err
		}
	}
}

// available returns the number of bytes buffered in the kernel for fd
func available(fd int) (int, error) {
	return unix.IoctlGetInt(fd, ioctlInq)
}

// readable reports whether fd is readable or hung up right now
func readable(fd int) bool {
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfds, 0)
	return err == nil && n > 0 && pfds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}
