package luaplugin

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// luaToGo converts a Lua value to a Go value. Tables with only positive
// integer keys become slices, other tables become maps.
func luaToGo(val lua.LValue) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		isArray := true
		maxIndex, count := 0, 0
		v.ForEach(func(k, _ lua.LValue) {
			count++
			if num, ok := k.(lua.LNumber); ok && num >= 1 && num <= math.MaxInt32 && float64(num) == math.Trunc(float64(num)) {
				maxIndex = max(maxIndex, int(num))
			} else {
				isArray = false
			}
		})

		// sparse keys would make the slice far larger than the table
		if isArray && maxIndex > 0 && maxIndex <= count {
			arr := make([]any, maxIndex)
			v.ForEach(func(k, item lua.LValue) {
				arr[int(k.(lua.LNumber))-1] = luaToGo(item)
			})
			return arr
		}

		m := make(map[string]any)
		v.ForEach(func(k, item lua.LValue) {
			m[k.String()] = luaToGo(item)
		})
		return m
	default:
		return nil
	}
}

// goToLua converts a Go value to a Lua value
func goToLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		tbl := L.NewTable()
		for i, item := range v {
			tbl.RawSetInt(i+1, goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range v {
			tbl.RawSetString(k, goToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range v {
			tbl.RawSetString(k, lua.LString(item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
