package script

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value into a Lua value.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	if v == nil {
		return lua.LNil, nil
	}
	if lv, ok := v.(lua.LValue); ok {
		return lv, nil
	}
	return reflectToLua(L, reflect.ValueOf(v))
}

func reflectToLua(L *lua.LState, rv reflect.Value) (lua.LValue, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return lua.LNil, nil
	case reflect.Bool:
		return lua.LBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float()), nil
	case reflect.String:
		return lua.LString(rv.String()), nil

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil, nil
		}
		return reflectToLua(L, rv.Elem())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return lua.LString(rv.Bytes()), nil
		}
		t := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			lv, err := reflectToLua(L, rv.Index(i))
			if err != nil {
				return nil, err
			}
			t.RawSetInt(i+1, lv)
		}
		return t, nil

	case reflect.Map:
		t := L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			k, err := reflectToLua(L, iter.Key())
			if err != nil {
				return nil, err
			}
			v, err := reflectToLua(L, iter.Value())
			if err != nil {
				return nil, err
			}
			t.RawSet(k, v)
		}
		return t, nil

	case reflect.Struct:
		t := L.NewTable()
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			lv, err := reflectToLua(L, rv.Field(i))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			t.RawSetString(name, lv)
		}
		return t, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
	}
}

// fieldName returns the Lua key of an exported struct field: the json tag
// name when present, otherwise the Go name.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return f.Name, true
}

// decode converts a Lua value into a T.
func decode[T any](lv lua.LValue) (T, error) {
	var out T
	err := fromLua(lv, reflect.ValueOf(&out).Elem())
	return out, err
}

// fromLua assigns lv into dst. Table keys missing from a struct leave the
// corresponding fields untouched.
func fromLua(lv lua.LValue, dst reflect.Value) error {
	if lv == lua.LNil {
		dst.SetZero()
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		b, ok := lv.(lua.LBool)
		if !ok {
			return mismatch(lv, dst)
		}
		dst.SetBool(bool(b))

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := lv.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) {
			return mismatch(lv, dst)
		}
		if dst.OverflowInt(int64(n)) {
			return fmt.Errorf("%w: %v overflows %s", ErrUnsupportedType, n, dst.Type())
		}
		dst.SetInt(int64(n))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := lv.(lua.LNumber)
		if !ok || n < 0 || float64(n) != math.Trunc(float64(n)) {
			return mismatch(lv, dst)
		}
		if dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %v overflows %s", ErrUnsupportedType, n, dst.Type())
		}
		dst.SetUint(uint64(n))

	case reflect.Float32, reflect.Float64:
		n, ok := lv.(lua.LNumber)
		if !ok {
			return mismatch(lv, dst)
		}
		dst.SetFloat(float64(n))

	case reflect.String:
		s, ok := lv.(lua.LString)
		if !ok {
			return mismatch(lv, dst)
		}
		dst.SetString(string(s))

	case reflect.Pointer:
		elem := reflect.New(dst.Type().Elem())
		if err := fromLua(lv, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)

	case reflect.Interface:
		if dst.NumMethod() != 0 {
			return mismatch(lv, dst)
		}
		dst.Set(reflect.ValueOf(plain(lv)))

	case reflect.Slice:
		t, ok := lv.(*lua.LTable)
		if !ok {
			return mismatch(lv, dst)
		}
		n := t.Len()
		s := reflect.MakeSlice(dst.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := fromLua(t.RawGetInt(i+1), s.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i+1, err)
			}
		}
		dst.Set(s)

	case reflect.Map:
		t, ok := lv.(*lua.LTable)
		if !ok || dst.Type().Key().Kind() != reflect.String {
			return mismatch(lv, dst)
		}
		m := reflect.MakeMap(dst.Type())
		var err error
		t.ForEach(func(k, v lua.LValue) {
			if err != nil {
				return
			}
			val := reflect.New(dst.Type().Elem()).Elem()
			if err = fromLua(v, val); err == nil {
				m.SetMapIndex(reflect.ValueOf(k.String()).Convert(dst.Type().Key()), val)
			}
		})
		if err != nil {
			return err
		}
		dst.Set(m)

	case reflect.Struct:
		t, ok := lv.(*lua.LTable)
		if !ok {
			return mismatch(lv, dst)
		}
		rt := dst.Type()
		for i := 0; i < rt.NumField(); i++ {
			name, ok := fieldName(rt.Field(i))
			if !ok {
				continue
			}
			v := t.RawGetString(name)
			if v == lua.LNil {
				continue
			}
			if err := fromLua(v, dst.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, dst.Type())
	}
	return nil
}

// plain converts a Lua value into a basic Go value for interface targets.
func plain(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := v.Len(); n > 0 {
			arr := make([]any, n)
			for i := range arr {
				arr[i] = plain(v.RawGetInt(i + 1))
			}
			return arr
		}
		m := make(map[string]any)
		v.ForEach(func(k, val lua.LValue) {
			m[k.String()] = plain(val)
		})
		return m
	default:
		return nil
	}
}

func mismatch(lv lua.LValue, dst reflect.Value) error {
	return fmt.Errorf("%w: cannot use lua %s as %s", ErrUnsupportedType, lv.Type(), dst.Type())
}
