package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/dice"
)

// registerModules defines the engine global in L:
//
//	engine.rule(type, fn)  registers fn as a rule of type
//	engine.roll(expr)      rolls a dice expression such as "2d6+1"
//	engine.log(msg)        logs msg at Info
func (m *Manager) registerModules(L *lua.LState, rules map[string][]*lua.LFunction) {
	engine := L.NewTable()
	L.SetField(engine, "rule", L.NewFunction(func(L *lua.LState) int {
		ruleType := L.CheckString(1)
		fn := L.CheckFunction(2)
		rules[ruleType] = append(rules[ruleType], fn)
		return 0
	}))
	L.SetField(engine, "roll", L.NewFunction(func(L *lua.LState) int {
		e, err := dice.Parse(L.CheckString(1))
		if err != nil {
			L.RaiseError("engine.roll: %s", err.Error())
			return 0
		}
		L.Push(lua.LNumber(m.roller.Roll(e).Total()))
		return 1
	}))
	L.SetField(engine, "log", L.NewFunction(func(L *lua.LState) int {
		m.logger.Info("script", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetGlobal("engine", engine)
}
