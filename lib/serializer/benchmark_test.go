package serializer

import (
	"bytes"
	"testing"
)

func BenchmarkSerializers(b *testing.B) {
	payload := map[string]any{
		"revs":    []any{"0123456789abcdef0123456789abcdef01234567", "89abcdef0123456789abcdef0123456789abcdef"},
		"current": 1,
		"opts":    map[string]any{"keep": true, "message": "split changeset into two"},
	}

	for name, factory := range testSerializers {
		s := factory()
		b.Run(name+"/Encode", func(b *testing.B) {
			var buf bytes.Buffer
			for i := 0; i < b.N; i++ {
				buf.Reset()
				if err := s.Encode(&buf, payload); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run(name+"/DecodeAll", func(b *testing.B) {
			var buf bytes.Buffer
			s.Encode(&buf, payload)
			data := buf.Bytes()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.DecodeAll(bytes.NewReader(data)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
