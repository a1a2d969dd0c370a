package fingerprint_test

import (
	"testing"

	"github.com/centaurhq/centaur/internal/fingerprint"
	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	sig := "app/handlers.go|app/service.go|app/store.go"
	first := fingerprint.Hash(sig)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, fingerprint.Hash(sig))
	}
}

func TestHash_FixedLength(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"short", "a.go"},
		{"long", string(make([]byte, 64*1024))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, fingerprint.Hash(tt.sig), 64)
		})
	}
}

func TestHash_EmptySignatureIsNotSpecialCased(t *testing.T) {
	// sha256 of the empty string, hex-encoded
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		fingerprint.Hash(""))
}

func TestHash_DistinctSignatures(t *testing.T) {
	assert.NotEqual(t, fingerprint.Hash("a.go|b.go"), fingerprint.Hash("a.go|c.go"))
}

func TestKey_IncludesKindAndLine(t *testing.T) {
	a := fingerprint.Key("ValueError", "a.go|b.go", 10)
	b := fingerprint.Key("TypeError", "a.go|b.go", 10)
	c := fingerprint.Key("ValueError", "a.go|b.go", 11)

	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPathSignature_SameCallChainSameSignature(t *testing.T) {
	frames := []string{"inner.go", "middle.go", "outer.go"}
	assert.Equal(t, "inner.go|middle.go|outer.go", fingerprint.PathSignature(frames))
	assert.Equal(t,
		fingerprint.Hash(fingerprint.PathSignature(frames)),
		fingerprint.Hash(fingerprint.PathSignature([]string{"inner.go", "middle.go", "outer.go"})))
}

func TestPathSignature_Empty(t *testing.T) {
	assert.Equal(t, "", fingerprint.PathSignature(nil))
}

func TestRequestSignature(t *testing.T) {
	assert.Equal(t, "/orders", fingerprint.RequestSignature("/orders", ""))
	assert.Equal(t, "/orders?page=2", fingerprint.RequestSignature("/orders", "page=2"))
}
