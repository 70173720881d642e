package scripting

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const filterScript = `
function on_say(id, text)
  if string.find(text, "spam") then
    return nil
  end
  if id == 7 then
    return "[mod] " .. text
  end
  return text
end
`

func newEngine(t *testing.T, src string) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	e, err := NewEngine(path, 256, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestFilterSayHook(t *testing.T) {
	e := newEngine(t, filterScript)

	got, ok := e.FilterSay(1, "hi")
	assert.True(t, ok)
	assert.Equal(t, "hi", got)

	_, ok = e.FilterSay(1, "buy spam now")
	assert.False(t, ok)

	got, ok = e.FilterSay(7, "hello")
	assert.True(t, ok)
	assert.Equal(t, "[mod] hello", got)
}

func TestFilterSayWithoutHook(t *testing.T) {
	e, err := NewEngine("", 256, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	got, ok := e.FilterSay(1, "  plain\x07 ")
	assert.True(t, ok)
	assert.Equal(t, "plain", got)

	_, ok = e.FilterSay(1, "\n\t")
	assert.False(t, ok, "blank lines are dropped")
}

func TestFilterSayHookErrorRelaysText(t *testing.T) {
	e := newEngine(t, `function on_say(id, text) error("boom") end`)
	got, ok := e.FilterSay(1, "still here")
	assert.True(t, ok)
	assert.Equal(t, "still here", got)
}

func TestFilterSayConcurrent(t *testing.T) {
	e := newEngine(t, filterScript)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, ok := e.FilterSay(1, "hi")
				assert.True(t, ok)
				assert.Equal(t, "hi", got)
			}
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	// "e" + combining acute composes to a single code point.
	assert.Equal(t, "\u00e9", Normalize("e\u0301", 0))
	assert.Equal(t, "ab", Normalize("a\x00b", 0))
	assert.Equal(t, "", Normalize("\xff", 0))
	// A 2-byte rune is never split.
	assert.Equal(t, "a", Normalize("a\u00e9", 2))
}

func TestNewEngineMissingPath(t *testing.T) {
	_, err := NewEngine(filepath.Join(t.TempDir(), "nope.lua"), 256, zap.NewNop())
	assert.Error(t, err)
}
