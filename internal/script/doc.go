// Package script hosts Lua subscribers and publishers for event buses.
//
// A Runtime wraps one sandboxed gopher-lua state. Bind functions attach
// global Lua functions to bus topics; Expose makes a bus publishable from
// Lua as a global table:
//
//	rt, _ := script.NewRuntime(script.WithName("follow"))
//	_ = rt.DoString(`
//	    function on_width(w) window.publish_members("mirror", { width = w }, "Width") end
//	`)
//	_ = script.Expose(rt, "window", windows)
//	_ = script.BindMember(rt, windows, "main", "Width", "on_width", event.NotifyOnChange)
//
// Values cross the boundary as tables keyed by the json tag of each
// exported struct field, or the field name when there is no tag.
//
// The Lua state is single-threaded: every call into it is serialized by
// the runtime. Lua can therefore only publish asynchronously; a blocking
// publish could wait on a delivery that needs the same runtime.
//
// All publishes and subscriptions made through a runtime use the runtime's
// identity, so a script never hears its own updates.
package script
