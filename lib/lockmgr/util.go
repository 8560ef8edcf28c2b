package lockmgr

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// generateOwnerID creates a new unique owner ID of the form
// "<host>:<pid>:<uuid>", so a held lock tells who took it
func generateOwnerID() ([]byte, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s:%d:%s", host, os.Getpid(), id)), nil
}

// describeOwner returns the host and process part of an owner ID
func describeOwner(ownerID []byte) string {
	owner := string(ownerID)
	if i := strings.LastIndexByte(owner, ':'); i > 0 {
		return "process " + owner[:i]
	}
	return "another process"
}
