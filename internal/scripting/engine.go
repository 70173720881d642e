package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sasha-s/go-deadlock"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Engine wraps a single gopher-lua VM. The VM is not goroutine-safe and
// chat is filtered from parallel connection tasks, so every call into it
// holds mu.
type Engine struct {
	mu       deadlock.Mutex
	vm       *lua.LState
	maxBytes int
	log      *zap.Logger
}

// NewEngine creates a Lua engine and loads path, which may be a single .lua
// file or a directory of them. An empty path yields an engine with no hooks.
func NewEngine(path string, maxBytes int, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("MAX_CHAT_BYTES", lua.LNumber(maxBytes))

	e := &Engine{vm: vm, maxBytes: maxBytes, log: log}
	if path == "" {
		return e, nil
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	case info.IsDir():
		err = e.loadDir(path)
	default:
		err = e.loadFile(path)
	}
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		if err := e.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return nil
}

// FilterSay normalises a chat line and passes it through the Lua on_say(id,
// text) hook. The hook returns the text to relay, nil or false to drop the
// line, or true to relay it unchanged. Lines that are empty after
// normalisation are dropped. A failing hook relays the normalised text.
func (e *Engine) FilterSay(id uint16, text string) (string, bool) {
	text = Normalize(text, e.maxBytes)
	if text == "" {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("on_say")
	if fn == lua.LNil {
		return text, true
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(id), lua.LString(text)); err != nil {
		e.log.Error("lua on_say error", zap.Uint16("id", id), zap.Error(err))
		return text, true
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch v := result.(type) {
	case lua.LString:
		out := Normalize(string(v), e.maxBytes)
		return out, out != ""
	case lua.LBool:
		if v {
			return text, true
		}
		return "", false
	case *lua.LNilType:
		return "", false
	default:
		e.log.Error("lua on_say returned non-string", zap.String("type", result.Type().String()))
		return text, true
	}
}

// Normalize converts text to NFC, strips control characters, trims
// surrounding space, and cuts it to at most maxBytes without splitting a
// rune.
func Normalize(text string, maxBytes int) string {
	text = norm.NFC.String(strings.ToValidUTF8(text, ""))
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)
	if maxBytes > 0 && len(text) > maxBytes {
		n := maxBytes
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return text
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
