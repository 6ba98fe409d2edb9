package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/statebus/internal/event"
)

// BindWhole calls the Lua global fn(value, changed) for every whole-event
// update of topic that mode selects.
func BindWhole[T any](r *Runtime, bus *event.Bus[T], topic, fn string, mode event.NotifyMode) error {
	if err := r.checkFunc(fn); err != nil {
		return err
	}
	sub := bus.Subscribe(topic, r.ID(), func(ctx context.Context, v T, changed bool) error {
		return r.Call(ctx, fn, v, changed)
	}, mode)
	return r.keep(sub)
}

// BindMember calls the Lua global fn(value) with the new value of a
// registered member of T.
func BindMember[T any](r *Runtime, bus *event.Bus[T], topic, member, fn string, mode event.NotifyMode) error {
	if err := r.checkFunc(fn); err != nil {
		return err
	}
	sub, err := bus.SubscribeMemberByName(topic, r.ID(), member, func(ctx context.Context, v any) error {
		return r.Call(ctx, fn, v)
	}, mode)
	if err != nil {
		return err
	}
	return r.keep(sub)
}

func (r *Runtime) checkFunc(fn string) error {
	return r.do(context.Background(), func(L *lua.LState) error {
		if fv := L.GetGlobal(fn); fv.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %q (got %s)", ErrFunctionNotFound, fn, fv.Type())
		}
		return nil
	})
}

// Expose installs a global table name with functions that publish to bus
// under the runtime's identity:
//
//	name.publish(topic, value)
//	name.publish_members(topic, value, member, ...)
//	name.current(topic)   -- snapshot or nil
//	name.members()        -- registered member names
//
// Publishes are asynchronous.
func Expose[T any](r *Runtime, name string, bus *event.Bus[T]) error {
	return r.do(context.Background(), func(L *lua.LState) error {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"publish": func(L *lua.LState) int {
				topic := L.CheckString(1)
				v, err := decode[T](L.CheckAny(2))
				if err != nil {
					L.ArgError(2, err.Error())
					return 0
				}
				bus.PublishAsync(callContext(L), topic, r.ID(), v)
				return 0
			},
			"publish_members": func(L *lua.LState) int {
				topic := L.CheckString(1)
				v, err := decode[T](L.CheckAny(2))
				if err != nil {
					L.ArgError(2, err.Error())
					return 0
				}
				members := make([]event.Member[T], 0, L.GetTop()-2)
				for i := 3; i <= L.GetTop(); i++ {
					m, ok := bus.Member(L.CheckString(i))
					if !ok {
						L.ArgError(i, fmt.Sprintf("%s: %s", event.ErrUnknownMember, L.CheckString(i)))
						return 0
					}
					members = append(members, m)
				}
				bus.PublishMembersAsync(callContext(L), topic, r.ID(), v, members...)
				return 0
			},
			"current": func(L *lua.LState) int {
				v, ok := bus.CurrentState(L.CheckString(1))
				if !ok {
					L.Push(lua.LNil)
					return 1
				}
				lv, err := toLua(L, v)
				if err != nil {
					L.RaiseError("%s", err.Error())
					return 0
				}
				L.Push(lv)
				return 1
			},
			"members": func(L *lua.LState) int {
				t := L.NewTable()
				for _, m := range bus.Members() {
					t.Append(lua.LString(m))
				}
				L.Push(t)
				return 1
			},
		})
		L.SetGlobal(name, mod)
		return nil
	})
}
