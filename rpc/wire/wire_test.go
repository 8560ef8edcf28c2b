package wire

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
)

// testValues covers separators, escape lookalikes and binary data
var testValues = []string{
	"",
	"plain",
	":",
	"::",
	":c",
	":x",
	"a,b;c=d:e",
	";;;",
	"===",
	",",
	"key=value;other:thing,more",
	"\x00\xff\n\r",
	strings.Repeat(":;,=", 64),
}

// randomBytes returns n pseudo random bytes biased towards separators
func randomBytes(r *rand.Rand, n int) string {
	alphabet := []byte(":,;=ceosx\x00\n ab")
	b := make([]byte, n)
	for i := range b {
		if r.Intn(3) == 0 {
			b[i] = byte(r.Intn(256))
		} else {
			b[i] = alphabet[r.Intn(len(alphabet))]
		}
	}
	return string(b)
}

func TestEscapeRoundTrip(t *testing.T) {
	check := func(t *testing.T, plain string) {
		escaped := EscapeArg(plain)
		got, err := UnescapeArg(escaped)
		if err != nil {
			t.Fatalf("UnescapeArg(%q): %v", escaped, err)
		}
		if got != plain {
			t.Errorf("round trip mismatch: %q -> %q -> %q", plain, escaped, got)
		}
	}

	for _, v := range testValues {
		check(t, v)
	}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		check(t, randomBytes(r, r.Intn(40)))
	}
}

func TestEscapeLeavesNoBareSeparators(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	values := append([]string{}, testValues...)
	for i := 0; i < 500; i++ {
		values = append(values, randomBytes(r, r.Intn(40)))
	}

	for _, v := range values {
		escaped := EscapeArg(v)
		if strings.ContainsAny(escaped, ";,=") {
			t.Errorf("EscapeArg(%q) = %q contains a bare separator", v, escaped)
		}
		for i := 0; i < len(escaped); i++ {
			if escaped[i] != ':' {
				continue
			}
			if i+1 >= len(escaped) || !strings.ContainsRune("cose", rune(escaped[i+1])) {
				t.Errorf("EscapeArg(%q) = %q has a bare ':' at %d", v, escaped, i)
			}
			i++
		}
	}
}

func TestUnescapeRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"abc:", ":z", "a:xb"} {
		if _, err := UnescapeArg(bad); !errors.Is(err, errdefs.ErrProtocol) {
			t.Errorf("UnescapeArg(%q) error = %v, want ProtocolError", bad, err)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte("capabilities: batch lookup\n"),
		bytes.Repeat([]byte{0, '\n', 0xff}, 5000),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range payloads {
		got, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d mismatch: got %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestReadFrameErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  *errdefs.Error
	}{
		{"non numeric", "abc\nxyz", errdefs.ErrProtocol},
		{"negative", "-1\n", errdefs.ErrProtocol},
		{"closed", "", errdefs.ErrRemote},
		{"short payload", "10\nabc", errdefs.ErrRemote},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(NewReader(strings.NewReader(tc.input)))
			if !errors.Is(err, tc.want) {
				t.Errorf("ReadFrame(%q) error = %v, want %s", tc.input, err, tc.want.Code)
			}
		})
	}
}

func TestReadFrameEmptyLengthLine(t *testing.T) {
	got, err := ReadFrame(NewReader(strings.NewReader("\n")))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty frame, got %q", got)
	}
}

func TestBatchRoundTrip(t *testing.T) {
	calls := []BatchCall{
		{Command: "lookup", Args: []Arg{{Name: "key", Value: []byte("tip;=,:")}}},
		{Command: "listkeys", Args: []Arg{{Name: "namespace", Value: []byte("bookmarks")}}},
		{Command: "heads"},
		{Command: "pushkey", Args: []Arg{
			{Name: "namespace", Value: []byte("bookmarks")},
			{Name: "key", Value: []byte("main")},
			{Name: "old", Value: []byte("")},
			{Name: "new", Value: []byte("a=b")},
		}},
	}

	encoded := EncodeBatch(calls)
	if strings.Count(encoded, ";") != len(calls)-1 {
		t.Errorf("encoded batch %q has wrong number of separators", encoded)
	}

	decoded, err := DecodeBatch(encoded)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	// normalise nil vs empty values before comparing
	for i := range decoded {
		for j := range decoded[i].Args {
			if len(decoded[i].Args[j].Value) == 0 {
				decoded[i].Args[j].Value = []byte("")
			}
		}
	}
	if !reflect.DeepEqual(calls, decoded) {
		t.Errorf("batch mismatch:\nwant %+v\ngot  %+v", calls, decoded)
	}
}

func TestBatchReplyWithErrors(t *testing.T) {
	results := []BatchResult{
		{Value: []byte("1 abc")},
		{Err: "unknown key: a;b"},
		{Value: []byte("")},
		{Value: []byte(":x looks like an error")},
	}

	data := EncodeBatchReply(results)
	decoded, err := DecodeBatchReply(data, len(results))
	if err != nil {
		t.Fatalf("DecodeBatchReply: %v", err)
	}
	for i := range results {
		if results[i].Err != decoded[i].Err || !bytes.Equal(results[i].Value, decoded[i].Value) {
			t.Errorf("result %d: want %+v, got %+v", i, results[i], decoded[i])
		}
	}

	if _, err := DecodeBatchReply(data, len(results)+1); !errors.Is(err, errdefs.ErrProtocol) {
		t.Errorf("expected ProtocolError for count mismatch, got %v", err)
	}
}

func TestCommandTableValidation(t *testing.T) {
	testCases := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"valid", Command{Name: "foo", Args: []string{"one", "two"}, Batchable: true}, true},
		{"variadic last", Command{Name: "bar", Args: []string{"cmds", VariadicArg}}, true},
		{"empty name", Command{Name: ""}, false},
		{"separator in name", Command{Name: "a;b"}, false},
		{"variadic not last", Command{Name: "baz", Args: []string{VariadicArg, "x"}}, false},
		{"batchable variadic", Command{Name: "qux", Args: []string{VariadicArg}, Batchable: true}, false},
		{"duplicate arg", Command{Name: "dup", Args: []string{"a", "a"}}, false},
		{"bad arg name", Command{Name: "argh", Args: []string{"a=b"}}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewCommandTable().Register(tc.cmd)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, errdefs.ErrProgramming) {
				t.Errorf("expected ProgrammingError, got %v", err)
			}
		})
	}

	table := NewCommandTable()
	if err := table.Register(Command{Name: "foo"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := table.Register(Command{Name: "foo"}); err == nil {
		t.Errorf("expected error for duplicate registration")
	}
}

func TestCommandBind(t *testing.T) {
	table := DefaultCommands()

	pushkey, _ := table.Lookup("pushkey")
	ordered, extra, err := pushkey.Bind(Args{
		"new":       []byte("n"),
		"key":       []byte("k"),
		"namespace": []byte("ns"),
		"old":       []byte("o"),
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	var names []string
	for _, a := range ordered {
		names = append(names, a.Name)
	}
	if !reflect.DeepEqual(names, []string{"namespace", "key", "old", "new"}) {
		t.Errorf("unexpected order %v", names)
	}
	if len(extra) != 0 {
		t.Errorf("unexpected extra args %v", extra)
	}

	if _, _, err := pushkey.Bind(Args{"key": nil}); !errors.Is(err, errdefs.ErrProgramming) {
		t.Errorf("expected ProgrammingError for missing args, got %v", err)
	}

	lookup, _ := table.Lookup("lookup")
	if _, _, err := lookup.Bind(Args{"key": nil, "bogus": nil}); !errors.Is(err, errdefs.ErrProgramming) {
		t.Errorf("expected ProgrammingError for undeclared arg, got %v", err)
	}

	batch, _ := table.Lookup("batch")
	_, extra, err = batch.Bind(Args{"cmds": []byte(""), "b": nil, "a": nil})
	if err != nil {
		t.Fatalf("Bind variadic: %v", err)
	}
	if len(extra) != 2 || extra[0].Name != "a" || extra[1].Name != "b" {
		t.Errorf("unexpected variadic extras %+v", extra)
	}
}
