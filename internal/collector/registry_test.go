package collector

import (
	"testing"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/stretchr/testify/assert"
)

type stubLoader struct{ format string }

func (s stubLoader) Format() string                  { return s.format }
func (s stubLoader) Load(string) ([]core.Bar, error) { return nil, nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(stubLoader{format: "JSON"})

	l, ok := r.Get(".json")
	assert.True(t, ok)
	assert.Equal(t, "JSON", l.Format())

	_, ok = r.Get("xml")
	assert.False(t, ok)
}

func TestRegistry_FormatsKeepOrder(t *testing.T) {
	r := DefaultRegistry()
	r.Register(stubLoader{format: "csv"})
	assert.Equal(t, []string{"csv", "parquet"}, r.Formats())

	l, ok := r.ForPath("/data/BTC-USDT_1d.parquet")
	assert.True(t, ok)
	assert.Equal(t, "parquet", l.Format())
}
