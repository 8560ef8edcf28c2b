package server

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/repo"
)

// lockWait bounds how long pushkey waits for the repository lock
const lockWait = 30 * time.Second

func NewKeysServerAdapter() IRPCServerAdapter {
	return &keysServerAdapterImpl{}
}

type keysServerAdapterImpl struct{}

func (adapter *keysServerAdapterImpl) Handle(ctx context.Context, req *Request, r *repo.Repo) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("handler: repository is nil")
	}

	switch req.Command {
	case "listkeys":
		return listKeys(r, string(req.Args["namespace"]))
	case "pushkey":
		return pushKey(ctx, r, req)
	default:
		return nil, fmt.Errorf("keys adapter: unsupported command %s", req.Command)
	}
}

// listKeys encodes every key of the namespace as "key\tvalue\n"
func listKeys(r *repo.Repo, namespace string) ([]byte, error) {
	s, err := r.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, key := range keys {
		value, ok, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "%s\t%s\n", key, value)
	}
	return buf.Bytes(), nil
}

// pushKey moves a key from old to new under the repository lock. The
// result is "1\n" if the key was updated and "0\n" if its value was not old.
func pushKey(ctx context.Context, r *repo.Repo, req *Request) ([]byte, error) {
	s, err := r.Namespace(string(req.Args["namespace"]))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	release, err := r.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	key := string(req.Args["key"])
	ok, err := s.CompareAndSwap(key, req.Args["old"], req.Args["new"])
	if err != nil {
		return nil, err
	}
	if !ok {
		Logger.Infof("pushkey %s/%s rejected: value changed", req.Args["namespace"], key)
		return []byte("0\n"), nil
	}
	return []byte("1\n"), nil
}
