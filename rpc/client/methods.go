package client

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
)

// --------------------------------------------------------------------------
// Typed methods
// --------------------------------------------------------------------------

// LookupMethod resolves a key (bookmark, tag, id prefix or ".") to an id.
var LookupMethod = Method[string, string]{
	Command: "lookup",
	Encode: func(key string) (wire.Args, error) {
		return wire.Args{"key": []byte(key)}, nil
	},
	Decode: decodeLookup,
}

// HeadsMethod returns the sorted heads of the remote.
var HeadsMethod = Method[struct{}, []string]{
	Command: "heads",
	Encode: func(struct{}) (wire.Args, error) {
		return nil, nil
	},
	Decode: func(raw []byte) ([]string, error) {
		heads := strings.Fields(string(raw))
		if len(heads) == 0 {
			return nil, errdefs.New(errdefs.CodeResponse, "heads", "unexpected response: %q", raw)
		}
		return heads, nil
	},
}

// ListKeysMethod lists the keys of a namespace.
var ListKeysMethod = Method[string, map[string]string]{
	Command: "listkeys",
	Encode: func(namespace string) (wire.Args, error) {
		return wire.Args{"namespace": []byte(namespace)}, nil
	},
	Decode: decodeListKeys,
}

// PushKeyArgs moves Key in Namespace from Old to New. An empty Old creates
// the key, an empty New deletes it.
type PushKeyArgs struct {
	Namespace string
	Key       string
	Old       string
	New       string
}

// PushKeyMethod updates a key if it still has the expected value.
var PushKeyMethod = Method[PushKeyArgs, bool]{
	Command: "pushkey",
	Encode: func(a PushKeyArgs) (wire.Args, error) {
		return wire.Args{
			"namespace": []byte(a.Namespace),
			"key":       []byte(a.Key),
			"old":       []byte(a.Old),
			"new":       []byte(a.New),
		}, nil
	},
	Decode: func(raw []byte) (bool, error) {
		switch strings.TrimSpace(string(raw)) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return false, errdefs.New(errdefs.CodeResponse, "pushkey", "unexpected response: %q", raw)
	},
}

func decodeLookup(raw []byte) (string, error) {
	ok, rest, found := strings.Cut(strings.TrimSuffix(string(raw), "\n"), " ")
	if !found {
		return "", errdefs.New(errdefs.CodeResponse, "lookup", "unexpected response: %q", raw)
	}
	if ok == "1" {
		return rest, nil
	}
	return "", errdefs.New(errdefs.CodeCommand, "lookup", "%s", rest)
}

func decodeListKeys(raw []byte) (map[string]string, error) {
	keys := map[string]string{}
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		k, v, ok := bytes.Cut(line, []byte("\t"))
		if !ok {
			return nil, errdefs.New(errdefs.CodeResponse, "listkeys", "malformed line %q", line)
		}
		keys[string(k)] = string(v)
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// Single calls
// --------------------------------------------------------------------------

// call runs a single typed call through a fresh executor
func call[A, R any](p *Peer, m Method[A, R], arg A) (R, error) {
	e := p.Executor()
	f := Submit(e, m, arg)
	if err := e.Close(); err != nil {
		var zero R
		return zero, err
	}
	return f.Result()
}

// Lookup resolves key on the remote.
func (p *Peer) Lookup(key string) (string, error) {
	return call(p, LookupMethod, key)
}

// Heads returns the heads of the remote.
func (p *Peer) Heads() ([]string, error) {
	return call(p, HeadsMethod, struct{}{})
}

// ListKeys returns the keys of namespace on the remote.
func (p *Peer) ListKeys(namespace string) (map[string]string, error) {
	return call(p, ListKeysMethod, namespace)
}

// PushKey updates a key on the remote and reports whether it was changed.
func (p *Peer) PushKey(args PushKeyArgs) (bool, error) {
	return call(p, PushKeyMethod, args)
}

// Unbundle pushes a bundle. heads are the remote heads the bundle was built
// against; the push is refused if they changed meanwhile. Pass nil to push
// regardless.
func (p *Peer) Unbundle(heads []string, bundle io.Reader) (int, error) {
	arg := "force"
	if heads != nil {
		sorted := append([]string(nil), heads...)
		sort.Strings(sorted)
		arg = strings.Join(sorted, " ")
	}
	raw, err := p.PushStream("unbundle", wire.Args{"heads": []byte(arg)}, bundle)
	if err != nil {
		return 0, err
	}
	result, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errdefs.New(errdefs.CodeResponse, "unbundle", "unexpected result: %q", raw)
	}
	return result, nil
}
