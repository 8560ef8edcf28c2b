//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package duplex

// ioctlInq is FIONREAD, _IOR('f', 127, int). golang.org/x/sys/unix does not
// export it for these platforms.
const ioctlInq = 0x4004667f
