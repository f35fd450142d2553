package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessageID(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"plain angle id":        {"<abc@example.test>", "abc@example.test"},
		"no brackets":           {"abc@example.test", "abc@example.test"},
		"case folded":           {"<ABC@Example.Test>", "abc@example.test"},
		"surrounding space":     {"  <abc@example.test>  ", "abc@example.test"},
		"references keeps last": {"<first@x> <second@x> <third@x>", "third@x"},
		"dangling bracket":      {"<abc@example.test", "abc@example.test"},
		"empty":                 {"", ""},
		"whitespace only":       {"   ", ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeMessageID(tc.in))
		})
	}
}
