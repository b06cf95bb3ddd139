package paging

// HookPos names a point in a walk where hooks are invoked.
type HookPos struct {
	Name string
}

var (
	// HookPosWalkStart is invoked once the base and the level of a table
	// are known, before any entry is read.
	HookPosWalkStart = &HookPos{Name: "WalkStart"}

	// HookPosEntry is invoked for every slot right after it is decoded,
	// including empty and unreadable ones.
	HookPosEntry = &HookPos{Name: "Entry"}

	// HookPosWalkEnd is invoked when the walk finishes or is cancelled.
	HookPosWalkEnd = &HookPos{Name: "WalkEnd"}
)

// HookCtx carries the state of the walk at the point a hook is invoked.
// Record is only set at HookPosEntry.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Table  *Table
	Record *Record
}

// A Hook observes a walk.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// HookableBase implements Hookable and can be embedded.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.hookList = append(h.hookList, hook)
}

// InvokeHook calls the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}
