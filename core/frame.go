package core

// FrameKind distinguishes a bare CALL return address from a CALL_FUNC
// activation record. CALL and CALL_FUNC used to push incompatible shapes
// (a bare int vs a {"pc", "params"} mapping) while RET unconditionally
// indexed the popped value as the latter, so a CALL frame would crash RET
// outright. Frame unifies both shapes into one variant so RET can recover
// the return pc regardless of which call opcode produced it.
type FrameKind int

const (
	FramePrimitive FrameKind = iota
	FrameFunction
)

// Frame is a single call-stack activation record.
type Frame struct {
	Kind     FrameKind
	ReturnPC int
	Params   []Value // only meaningful when Kind == FrameFunction
}

// LoopFrame is a single loop-stack entry pushed by FOR_LOOP and consumed by
// BREAK_LOOP/CONTINUE_LOOP. LoopStartPC is the only position FOR_LOOP
// records — there is no separate "end of loop" address in the data model,
// which is why BREAK_LOOP's documented behavior (see vm.go) re-enters the
// loop header instead of jumping past it.
type LoopFrame struct {
	CounterName    string
	IterationLimit int64
	LoopStartPC    int
}
