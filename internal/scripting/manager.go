package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/dice"
)

// Manager owns one sandboxed VM holding every loaded rule script and evaluates
// rules by type. A type with no registered rules always passes.
//
// The VM is single-threaded; mu serializes every call into it.
type Manager struct {
	mu        sync.Mutex
	L         *lua.LState
	rules     map[string][]*lua.LFunction
	instLimit int

	roller *dice.Roller
	logger *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller and logger must be non-nil.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{roller: roller, logger: logger, rules: make(map[string][]*lua.LFunction)}
}

// LoadDir replaces the VM with a fresh one, registers the engine module and
// executes every *.lua file in dir in lexicographic order. Each file and
// each later rule invocation may execute at most instLimit opcodes.
//
// Precondition: dir must be a readable directory; instLimit >= 0.
// Postcondition: On error the previously loaded rules stay active.
func (m *Manager) LoadDir(dir string, instLimit int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	L := NewSandboxedState(instLimit)
	rules := make(map[string][]*lua.LFunction)
	m.registerModules(L, rules)
	for _, path := range files {
		if err := withBudget(L, instLimit, func() error { return L.DoFile(path) }); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.L
	m.L, m.rules, m.instLimit = L, rules, instLimit
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	m.logger.Info("scripts loaded", zap.String("dir", dir), zap.Int("files", len(files)), zap.Int("rule_types", len(rules)))
	return nil
}

// RuleCount returns how many rules of ruleType are registered.
func (m *Manager) RuleCount(ruleType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules[ruleType])
}

// EvaluateRule calls every rule of ruleType, in registration order, with args
// as a Lua table. It returns false as soon as a rule returns a falsy value.
// A rule that raises an error or exceeds its instruction budget counts as a
// rejection and is logged at Warn.
func (m *Manager) EvaluateRule(ruleType string, args map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	fns := m.rules[ruleType]
	if len(fns) == 0 {
		return true
	}
	tbl := toTable(m.L, args)
	for i, fn := range fns {
		var ret lua.LValue
		err := withBudget(m.L, m.instLimit, func() error {
			if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, tbl); err != nil {
				return err
			}
			ret = m.L.Get(-1)
			m.L.Pop(1)
			return nil
		})
		if err != nil {
			m.logger.Warn("scripting: rule error",
				zap.String("rule_type", ruleType),
				zap.Int("rule", i),
				zap.Error(err),
			)
			return false
		}
		if !lua.LVAsBool(ret) {
			return false
		}
	}
	return true
}

// Close releases the VM. Afterwards every rule type passes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
	m.rules = make(map[string][]*lua.LFunction)
}

// toTable converts args into a Lua table. Values other than strings, bools
// and numbers are skipped.
func toTable(L *lua.LState, args map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range args {
		switch x := v.(type) {
		case string:
			tbl.RawSetString(k, lua.LString(x))
		case bool:
			tbl.RawSetString(k, lua.LBool(x))
		case int:
			tbl.RawSetString(k, lua.LNumber(x))
		case int64:
			tbl.RawSetString(k, lua.LNumber(x))
		case uint32:
			tbl.RawSetString(k, lua.LNumber(x))
		case float64:
			tbl.RawSetString(k, lua.LNumber(x))
		}
	}
	return tbl
}
