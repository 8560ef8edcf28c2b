package wire

import (
	"bytes"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
)

// Batch strings use four separators: ';' between calls, ':' between a
// command name and its arguments, ',' between arguments and '=' between an
// argument name and its value. Values are escaped so that none of the four
// appears bare:
//
//	':' -> ":c"   ',' -> ":o"   ';' -> ":s"   '=' -> ":e"
const escapeChar = ':'

// errorEntry prefixes a failed call inside a batch reply. An escaped value
// never contains ':' followed by 'x', so the prefix cannot be confused with
// a result.
const errorEntry = ":x"

// EscapeArg escapes a value for use inside a batch string.
func EscapeArg(plain string) string {
	if !strings.ContainsAny(plain, ":,;=") {
		return plain
	}
	var sb strings.Builder
	sb.Grow(len(plain) + 8)
	for i := 0; i < len(plain); i++ {
		switch c := plain[i]; c {
		case ':':
			sb.WriteString(":c")
		case ',':
			sb.WriteString(":o")
		case ';':
			sb.WriteString(":s")
		case '=':
			sb.WriteString(":e")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// UnescapeArg reverses EscapeArg. A dangling or unknown escape sequence is a
// protocol error.
func UnescapeArg(escaped string) (string, error) {
	if strings.IndexByte(escaped, escapeChar) < 0 {
		return escaped, nil
	}
	var sb strings.Builder
	sb.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != escapeChar {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(escaped) {
			return "", errdefs.New(errdefs.CodeProtocol, "unescape", "dangling escape at end of %q", escaped)
		}
		i++
		switch escaped[i] {
		case 'c':
			sb.WriteByte(':')
		case 'o':
			sb.WriteByte(',')
		case 's':
			sb.WriteByte(';')
		case 'e':
			sb.WriteByte('=')
		default:
			return "", errdefs.New(errdefs.CodeProtocol, "unescape", "unknown escape %q in %q", escaped[i-1:i+1], escaped)
		}
	}
	return sb.String(), nil
}

// --------------------------------------------------------------------------
// Batch Requests
// --------------------------------------------------------------------------

// Arg is one named argument of a call. Order is significant on the wire.
type Arg struct {
	Name  string
	Value []byte
}

// BatchCall is one logical call inside a batch request.
type BatchCall struct {
	Command string
	Args    []Arg
}

// EncodeBatch encodes calls as "name:k=v,k2=v2;name2:..." with escaped values.
func EncodeBatch(calls []BatchCall) string {
	var sb strings.Builder
	for i, call := range calls {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(call.Command)
		sb.WriteByte(':')
		for j, arg := range call.Args {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(arg.Name)
			sb.WriteByte('=')
			sb.WriteString(EscapeArg(string(arg.Value)))
		}
	}
	return sb.String()
}

// DecodeBatch parses a string produced by EncodeBatch.
func DecodeBatch(cmds string) ([]BatchCall, error) {
	if cmds == "" {
		return nil, nil
	}
	parts := strings.Split(cmds, ";")
	calls := make([]BatchCall, 0, len(parts))
	for _, part := range parts {
		name, rest, ok := strings.Cut(part, ":")
		if !ok || name == "" {
			return nil, errdefs.New(errdefs.CodeProtocol, "batch", "malformed batch entry %q", part)
		}
		call := BatchCall{Command: name}
		if rest != "" {
			for _, a := range strings.Split(rest, ",") {
				k, v, ok := strings.Cut(a, "=")
				if !ok || k == "" {
					return nil, errdefs.New(errdefs.CodeProtocol, "batch", "malformed argument %q for %s", a, name)
				}
				plain, err := UnescapeArg(v)
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, Arg{Name: k, Value: []byte(plain)})
			}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// --------------------------------------------------------------------------
// Batch Replies
// --------------------------------------------------------------------------

// DefaultBatchError is the message of a failed call whose error has none.
const DefaultBatchError = "remote command failed"

// BatchResult is the outcome of one call in a batch reply. Err is non-empty
// when the remote failed that call only.
type BatchResult struct {
	Value []byte
	Err   string
}

// EncodeBatchReply joins escaped results with ';'. A result with an empty
// Err is a success, so failures must carry a message.
func EncodeBatchReply(results []BatchResult) []byte {
	var buf bytes.Buffer
	for i, r := range results {
		if i > 0 {
			buf.WriteByte(';')
		}
		if r.Err != "" {
			buf.WriteString(errorEntry)
			buf.WriteString(EscapeArg(r.Err))
			continue
		}
		buf.WriteString(EscapeArg(string(r.Value)))
	}
	return buf.Bytes()
}

// DecodeBatchReply splits a batch reply into exactly expected results.
func DecodeBatchReply(data []byte, expected int) ([]BatchResult, error) {
	if expected == 0 {
		if len(data) != 0 {
			return nil, errdefs.New(errdefs.CodeProtocol, "batch", "unexpected reply for empty batch: %q", data)
		}
		return nil, nil
	}
	parts := strings.Split(string(data), ";")
	if len(parts) != expected {
		return nil, errdefs.New(errdefs.CodeProtocol, "batch", "expected %d results, got %d", expected, len(parts))
	}
	results := make([]BatchResult, len(parts))
	for i, part := range parts {
		if msg, ok := strings.CutPrefix(part, errorEntry); ok {
			plain, err := UnescapeArg(msg)
			if err != nil {
				return nil, err
			}
			if plain == "" {
				plain = DefaultBatchError
			}
			results[i] = BatchResult{Err: plain}
			continue
		}
		plain, err := UnescapeArg(part)
		if err != nil {
			return nil, err
		}
		results[i] = BatchResult{Value: []byte(plain)}
	}
	return results, nil
}
