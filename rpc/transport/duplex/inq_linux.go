package duplex

import "golang.org/x/sys/unix"

// ioctlInq asks for the number of unread bytes of a pipe
const ioctlInq = unix.TIOCINQ
