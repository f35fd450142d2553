package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReplyQuote(t *testing.T) {
	t.Run("angle-quoted block ends content", func(t *testing.T) {
		body := "thanks, that worked\n\n> previous message\n> more quoted"
		assert.Equal(t, "thanks, that worked", StripReplyQuote(body))
	})

	t.Run("original message marker ends content", func(t *testing.T) {
		body := "still broken\n-----Original Message-----\nFrom: support\nit said:"
		assert.Equal(t, "still broken", StripReplyQuote(body))
	})

	t.Run("attribution line ends content", func(t *testing.T) {
		body := "see attached\nOn Tue, Mar 10, Support wrote:\n> hello"
		assert.Equal(t, "see attached", StripReplyQuote(body))
	})

	t.Run("localized header markers end content", func(t *testing.T) {
		body := "sigue fallando\nDe: soporte\nEnviado: martes"
		assert.Equal(t, "sigue fallando", StripReplyQuote(body))
	})

	t.Run("separator lines are dropped", func(t *testing.T) {
		body := "line one\n------\nline two"
		assert.Equal(t, "line one\nline two", StripReplyQuote(body))
	})

	t.Run("blank lines inside content survive", func(t *testing.T) {
		body := "first paragraph\n\nsecond paragraph"
		assert.Equal(t, body, StripReplyQuote(body))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.Equal(t, "", StripReplyQuote(""))
	})
}
