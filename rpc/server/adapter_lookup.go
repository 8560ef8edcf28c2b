package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/repo"
)

func NewLookupServerAdapter() IRPCServerAdapter {
	return &lookupServerAdapterImpl{}
}

type lookupServerAdapterImpl struct{}

// Handle answers lookup with "1 <id>\n" for a known key and "0 <reason>\n"
// otherwise; a failed lookup is a regular result, not an error. heads is
// answered with the sorted heads separated by spaces.
func (adapter *lookupServerAdapterImpl) Handle(_ context.Context, req *Request, r *repo.Repo) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("handler: repository is nil")
	}

	switch req.Command {
	case "lookup":
		id, err := r.Lookup(string(req.Args["key"]))
		if err != nil {
			return []byte(fmt.Sprintf("0 %s\n", userMessage(err))), nil
		}
		return []byte(fmt.Sprintf("1 %s\n", id)), nil
	case "heads":
		heads, err := r.Heads()
		if err != nil {
			return nil, err
		}
		return []byte(strings.Join(heads, " ") + "\n"), nil
	default:
		return nil, fmt.Errorf("lookup adapter: unsupported command %s", req.Command)
	}
}
