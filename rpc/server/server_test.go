package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
)

func newTestServer(t *testing.T, config common.ServerConfig) (*Server, *repo.Repo) {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	return NewServer(config, r), r
}

// arg encodes one wire argument
func arg(name, value string) string {
	return fmt.Sprintf("%s %d\n%s", name, len(value), value)
}

func serve(t *testing.T, s *Server, input string) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(input), &out, &errOut); err != nil {
		t.Fatalf("Serve: %v (stderr %q)", err, errOut.String())
	}
	return out.String(), errOut.String()
}

func legacyHandshake() string {
	return "hello\nbetween\n" + arg("pairs", wire.NullPairs)
}

func TestLegacyHandshake(t *testing.T) {
	s, _ := newTestServer(t, common.ServerConfig{})
	out, _ := serve(t, s, legacyHandshake())

	caps := "capabilities: batch lookup protocaps pushkey unbundle\n"
	want := fmt.Sprintf("%d\n%s1\n\n", len(caps), caps)
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestUpgrade(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		s, _ := newTestServer(t, common.ServerConfig{})
		out, _ := serve(t, s, "upgrade tok proto=exp-ssh-v2-0003\n"+legacyHandshake())
		if !strings.HasPrefix(out, "0\n") || !strings.HasSuffix(out, "1\n\n") {
			t.Errorf("out = %q", out)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		s, _ := newTestServer(t, common.ServerConfig{AcceptV2: true, DisableBatch: true})
		out, errOut := serve(t, s, "upgrade tok proto=exp-ssh-v2-0003\n"+legacyHandshake()+"capabilities\n")

		caps := "capabilities: lookup protocaps pushkey unbundle"
		want := fmt.Sprintf("upgraded tok exp-ssh-v2-0003\n%d\n%s\n", len(caps), caps) +
			"33\nlookup protocaps pushkey unbundle"
		if out != want {
			t.Errorf("out = %q, want %q", out, want)
		}
		if errOut != "upgraded tok exp-ssh-v2-0003\n" {
			t.Errorf("stderr = %q", errOut)
		}
	})

	t.Run("unknown protocol", func(t *testing.T) {
		s, _ := newTestServer(t, common.ServerConfig{AcceptV2: true})
		out, _ := serve(t, s, "upgrade tok proto=exp-ssh-v9\n"+legacyHandshake())
		if !strings.HasPrefix(out, "0\n") {
			t.Errorf("out = %q", out)
		}
	})
}

func TestLookupAndKeys(t *testing.T) {
	s, r := newTestServer(t, common.ServerConfig{})
	bookmarks, _ := r.Namespace("bookmarks")
	bookmarks.Set("main", []byte("abcd"))
	bookmarks.Set("dev", []byte("ef01"))

	input := "lookup\n" + arg("key", "main") +
		"lookup\n" + arg("key", "nope") +
		"listkeys\n" + arg("namespace", "bookmarks")
	out, _ := serve(t, s, input)

	want := "7\n1 abcd\n" +
		"26\n0 unknown revision 'nope'\n" +
		"19\ndev\tef01\nmain\tabcd\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if got := s.Requests("lookup"); got != 2 {
		t.Errorf("lookup requests = %d, want 2", got)
	}
}

func TestPushKey(t *testing.T) {
	s, r := newTestServer(t, common.ServerConfig{})
	pushkey := func(old, new string) string {
		return "pushkey\n" + arg("namespace", "bookmarks") + arg("key", "main") + arg("old", old) + arg("new", new)
	}
	out, _ := serve(t, s, pushkey("", "aaaa")+pushkey("bbbb", "cccc")+pushkey("aaaa", "cccc"))

	if want := "2\n1\n2\n0\n2\n1\n"; out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	bookmarks, _ := r.Namespace("bookmarks")
	if value, _, _ := bookmarks.Get("main"); string(value) != "cccc" {
		t.Errorf("main = %q, want cccc", value)
	}
}

func TestOutOfBandError(t *testing.T) {
	s, _ := newTestServer(t, common.ServerConfig{})
	out, errOut := serve(t, s, "listkeys\n"+arg("namespace", "Bad/NS"))
	if out != "\n" {
		t.Errorf("out = %q, want a blank line", out)
	}
	if !strings.Contains(errOut, "abort: invalid namespace name 'Bad/NS'") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestUnknownCommand(t *testing.T) {
	s, _ := newTestServer(t, common.ServerConfig{})
	out, _ := serve(t, s, "frobnicate\n")
	if out != "0\n" {
		t.Errorf("out = %q, want empty response", out)
	}
}

func TestBatch(t *testing.T) {
	s, r := newTestServer(t, common.ServerConfig{})
	tags, _ := r.Namespace("tags")
	tags.Set("v1;x", []byte("1111"))

	cmds := wire.EncodeBatch([]wire.BatchCall{
		{Command: "lookup", Args: []wire.Arg{{Name: "key", Value: []byte("v1;x")}}},
		{Command: "lookup", Args: []wire.Arg{{Name: "key", Value: []byte("missing")}}},
		{Command: "hello"},
		{Command: "listkeys", Args: []wire.Arg{{Name: "namespace", Value: []byte("-bad")}}},
		{Command: "listkeys", Args: []wire.Arg{{Name: "namespace", Value: []byte("tags")}}},
	})
	out, _ := serve(t, s, "batch\n"+arg("cmds", cmds)+"* 0\n")

	reader := wire.NewReader(strings.NewReader(out))
	frame, err := wire.ReadFrame(reader)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	results, err := wire.DecodeBatchReply(frame, 5)
	if err != nil {
		t.Fatalf("DecodeBatchReply(%q): %v", frame, err)
	}

	if string(results[0].Value) != "1 1111\n" || results[0].Err != "" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if string(results[1].Value) != "0 unknown revision 'missing'\n" {
		t.Errorf("result 1 = %+v", results[1])
	}
	if results[2].Err != "command hello cannot be batched" {
		t.Errorf("result 2 = %+v", results[2])
	}
	if results[3].Err != "invalid namespace name '-bad'" {
		t.Errorf("result 3 = %+v", results[3])
	}
	if string(results[4].Value) != "v1;x\t1111\n" {
		t.Errorf("result 4 = %+v", results[4])
	}

	if got := s.Requests("batch"); got != 1 {
		t.Errorf("batch requests = %d", got)
	}
	if got := s.Requests("batch:lookup"); got != 2 {
		t.Errorf("batched lookups = %d", got)
	}
}

type adapterFunc func(ctx context.Context, req *Request, r *repo.Repo) ([]byte, error)

func (f adapterFunc) Handle(ctx context.Context, req *Request, r *repo.Repo) ([]byte, error) {
	return f(ctx, req, r)
}

func TestBatchErrorWithoutMessage(t *testing.T) {
	s, _ := newTestServer(t, common.ServerConfig{})
	silent := adapterFunc(func(context.Context, *Request, *repo.Repo) ([]byte, error) {
		return nil, errors.New("")
	})
	if err := s.RegisterCommand(wire.Command{Name: "silent", Batchable: true}, silent); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}

	cmds := wire.EncodeBatch([]wire.BatchCall{
		{Command: "silent"},
		{Command: "lookup", Args: []wire.Arg{{Name: "key", Value: []byte("missing")}}},
	})
	out, _ := serve(t, s, "batch\n"+arg("cmds", cmds)+"* 0\n")

	frame, err := wire.ReadFrame(wire.NewReader(strings.NewReader(out)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !strings.HasPrefix(string(frame), ":x") {
		t.Errorf("reply %q does not start with an error entry", frame)
	}
	results, err := wire.DecodeBatchReply(frame, 2)
	if err != nil {
		t.Fatalf("DecodeBatchReply(%q): %v", frame, err)
	}
	if results[0].Err != wire.DefaultBatchError || results[0].Value != nil {
		t.Errorf("result 0 = %+v, want a failure", results[0])
	}
	if results[1].Err != "" {
		t.Errorf("result 1 = %+v", results[1])
	}
}

func TestUnbundle(t *testing.T) {
	payload := func(chunks ...string) string {
		var sb strings.Builder
		for _, c := range chunks {
			fmt.Fprintf(&sb, "%d\n%s", len(c), c)
		}
		sb.WriteString("0\n")
		return sb.String()
	}

	t.Run("accepted", func(t *testing.T) {
		s, r := newTestServer(t, common.ServerConfig{})
		out, errOut := serve(t, s, "unbundle\n"+arg("heads", repo.NullID)+payload("HG10", "UN"))
		if want := "0\n0\n1\n1"; out != want {
			t.Errorf("out = %q, want %q", out, want)
		}
		if !strings.Contains(errOut, "(6 bytes)") {
			t.Errorf("stderr = %q", errOut)
		}
		bundles, err := os.ReadDir(r.Path("bundles"))
		if err != nil || len(bundles) != 1 {
			t.Errorf("bundles = %v, %v", bundles, err)
		}
	})

	t.Run("heads changed", func(t *testing.T) {
		s, _ := newTestServer(t, common.ServerConfig{})
		out, _ := serve(t, s, "unbundle\n"+arg("heads", "ffff")+payload("data")+"capabilities\n")
		msg := "repository changed while pushing - please try again"
		want := fmt.Sprintf("0\n%d\n%s", len(msg), msg) + "39\nbatch lookup protocaps pushkey unbundle"
		if out != want {
			t.Errorf("out = %q, want %q", out, want)
		}
	})

	t.Run("force", func(t *testing.T) {
		s, _ := newTestServer(t, common.ServerConfig{})
		out, _ := serve(t, s, "unbundle\n"+arg("heads", "force")+payload("data"))
		if out != "0\n0\n1\n1" {
			t.Errorf("out = %q", out)
		}
	})
}
