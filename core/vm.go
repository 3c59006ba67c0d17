package core

import (
	"fmt"
	"io"
	"os"

	"github.com/holiman/uint256"
)

// Bytecode is the flat instruction stream SANVM executes: a mixed sequence
// of opcode bytes (encoded as IntValue) and, for PUSH only, one inline
// operand of any Value kind. A label (KindLabel) found in opcode position
// is skipped as a no-op; PenaParser's own fix-up already replaces every
// jump target with a concrete pc and emits no label slots.
type Bytecode []Value

// Op wraps an Opcode as a Bytecode element.
func Op(op Opcode) Value {
	return Value{Kind: KindInt, Int: new(uint256.Int).SetUint64(uint64(op))}
}

// VM is a single, exclusively-owned, single-threaded bytecode interpreter.
// It is not safe for concurrent use; each logical execution (a top-level
// Pena program, or a single contract invocation) gets its own VM bound to
// its own Storage.
type VM struct {
	stack     []Value
	callStack []Frame
	loopStack []LoopFrame
	running   bool
	pc        int
	bytecode  Bytecode

	Storage *Storage
	Budget  *StepBudget
	Out     io.Writer

	handlers map[Opcode]func() error
}

// NewVM returns a VM bound to storage, with an unbounded step budget and
// PRINT sinking to os.Stdout. Use SetBudget/SetOutput to override either.
func NewVM(storage *Storage) *VM {
	if storage == nil {
		storage = NewStorage()
	}
	vm := &VM{
		Storage: storage,
		Budget:  NewStepBudget(0),
		Out:     os.Stdout,
	}
	vm.handlers = vm.buildHandlers()
	return vm
}

// SetBudget installs a step budget, replacing the default unbounded one.
func (vm *VM) SetBudget(b *StepBudget) { vm.Budget = b }

// SetOutput redirects PRINT's sink.
func (vm *VM) SetOutput(w io.Writer) { vm.Out = w }

// Stack exposes the current data stack for inspection (tests, REPL tools).
func (vm *VM) Stack() []Value { return vm.stack }

// Run executes bytecode from pc 0 until HALT, a step budget exhaustion, or
// a hard error. It may be called more than once on the same VM; the data
// stack, call stack and loop stack persist across calls (the original
// implementation's run() also reuses self.stack across invocations).
func (vm *VM) Run(bytecode Bytecode) error {
	vm.bytecode = bytecode
	vm.pc = 0
	vm.running = true

	for vm.running && vm.pc < len(vm.bytecode) {
		raw := vm.bytecode[vm.pc]
		vm.pc++

		if raw.Kind == KindLabel {
			continue
		}
		if raw.Kind != KindInt {
			return fmt.Errorf("%w: non-opcode value at pc %d", ErrUnknownOpcode, vm.pc-1)
		}
		op := Opcode(raw.Int.Uint64())

		if err := vm.Budget.Consume(); err != nil {
			return err
		}

		handler, ok := vm.handlers[op]
		if !ok {
			return fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, byte(op))
		}
		if err := handler(); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) buildHandlers() map[Opcode]func() error {
	return map[Opcode]func() error{
		PUSH:          vm.opPush,
		POP:           vm.opPop,
		ADD:           vm.opAdd,
		SUB:           vm.opSub,
		MUL:           vm.opMul,
		DIV:           vm.opDiv,
		PRINT:         vm.opPrint,
		HALT:          vm.opHalt,
		MOD:           vm.opMod,
		JMP:           vm.opJmp,
		IF:            vm.opIf,
		DUP:           vm.opDup,
		SWAP:          vm.opSwap,
		AND:           vm.opAnd,
		OR:            vm.opOr,
		XOR:           vm.opXor,
		EQ:            vm.opEq,
		NEQ:           vm.opNeq,
		LT:            vm.opLt,
		LTE:           vm.opLte,
		GT:            vm.opGt,
		GTE:           vm.opGte,
		CALL:          vm.opCall,
		RET:           vm.opRet,
		NOP:           vm.opNop,
		OVER:          vm.opOver,
		ROT:           vm.opRot,
		SET:           vm.opSet,
		GET:           vm.opGet,
		DELETE:        vm.opDelete,
		HAS:           vm.opHas,
		LIST_APPEND:   vm.opListAppend,
		LIST_REMOVE:   vm.opListRemove,
		LIST_LEN:      vm.opListLen,
		LIST_GET:      vm.opListGet,
		DICT_SET:      vm.opDictSet,
		DICT_GET:      vm.opDictGet,
		DICT_KEYS:     vm.opDictKeys,
		FOR_LOOP:      vm.opForLoop,
		BREAK_LOOP:    vm.opBreakLoop,
		CONTINUE_LOOP: vm.opContinueLoop,
		DEF_FUNC:      vm.opDefFunc,
		CALL_FUNC:     vm.opCallFunc,
		DROP:          vm.opPop,
	}
}

// --- stack helpers -----------------------------------------------------

func (vm *VM) push(v Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() (Value, bool) {
	if len(vm.stack) == 0 {
		return Value{}, false
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, true
}

func (vm *VM) nextOperand() (Value, bool) {
	if vm.pc >= len(vm.bytecode) {
		return Value{}, false
	}
	v := vm.bytecode[vm.pc]
	vm.pc++
	return v, true
}

// --- stack / arithmetic --------------------------------------------------

// opPush reads one inline operand from the bytecode stream and pushes it.
// Underflow never applies here: PUSH always has an operand by construction
// of any well-formed program.
func (vm *VM) opPush() error {
	v, ok := vm.nextOperand()
	if !ok {
		return nil
	}
	vm.push(v)
	return nil
}

// opPop discards the top of stack. Underflow is a silent no-op, matching
// every stack-arity opcode in this VM: malformed or premature programs
// degrade quietly rather than crash, per this VM's documented underflow
// policy.
func (vm *VM) opPop() error {
	vm.pop()
	return nil
}

func (vm *VM) binaryIntOp(f func(a, b *uint256.Int) (*uint256.Int, error)) error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	if a.Kind != KindInt || b.Kind != KindInt {
		return fmt.Errorf("%w: arithmetic requires two integers", ErrType)
	}
	result, err := f(a.Int, b.Int)
	if err != nil {
		return err
	}
	vm.push(UintValue(result))
	return nil
}

func (vm *VM) opAdd() error {
	return vm.binaryIntOp(func(a, b *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Add(a, b), nil
	})
}

func (vm *VM) opSub() error {
	return vm.binaryIntOp(func(a, b *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Sub(a, b), nil
	})
}

func (vm *VM) opMul() error {
	return vm.binaryIntOp(func(a, b *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Mul(a, b), nil
	})
}

func (vm *VM) opDiv() error {
	return vm.binaryIntOp(func(a, b *uint256.Int) (*uint256.Int, error) {
		if b.IsZero() {
			return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
		}
		return new(uint256.Int).Div(a, b), nil
	})
}

func (vm *VM) opMod() error {
	return vm.binaryIntOp(func(a, b *uint256.Int) (*uint256.Int, error) {
		if b.IsZero() {
			return nil, fmt.Errorf("%w: modulo by zero", ErrArithmetic)
		}
		return new(uint256.Int).Mod(a, b), nil
	})
}

func (vm *VM) opPrint() error {
	if len(vm.stack) == 0 {
		return nil
	}
	fmt.Fprintln(vm.Out, vm.stack[len(vm.stack)-1].String())
	return nil
}

func (vm *VM) opHalt() error {
	vm.running = false
	return nil
}

func (vm *VM) opNop() error { return nil }

// --- control flow --------------------------------------------------------

func (vm *VM) opJmp() error {
	if vm.pc >= len(vm.bytecode) {
		return nil
	}
	target := vm.bytecode[vm.pc]
	if target.Kind != KindInt {
		return fmt.Errorf("%w: JMP target is not an integer", ErrType)
	}
	vm.pc = int(target.Int.Uint64())
	return nil
}

// opIf pops a condition and compares it against an inline expected value
// (PenaParser always compiles `IF 1, JMP label`). A mismatch bypasses the
// JMP instruction entirely - both its opcode and operand slot - landing
// directly in the guarded body; a match leaves pc on the JMP so it runs
// normally next and carries control to label, past the body. Bypassing
// the JMP's operand as well as its opcode (rather than a single raw
// array slot) keeps every opcode's exit pc on an instruction boundary.
func (vm *VM) opIf() error {
	cond, ok := vm.pop()
	if !ok {
		return nil
	}
	expected, ok := vm.nextOperand()
	if !ok {
		return nil
	}
	if !cond.Equal(expected) {
		vm.pc += 2
	}
	return nil
}

func (vm *VM) opDup() error {
	if len(vm.stack) == 0 {
		return nil
	}
	top := vm.stack[len(vm.stack)-1]
	vm.push(top)
	return nil
}

func (vm *VM) opOver() error {
	if len(vm.stack) < 2 {
		return nil
	}
	vm.push(vm.stack[len(vm.stack)-2])
	return nil
}

func (vm *VM) opRot() error {
	n := len(vm.stack)
	if n < 3 {
		return nil
	}
	vm.stack[n-3], vm.stack[n-2], vm.stack[n-1] = vm.stack[n-2], vm.stack[n-1], vm.stack[n-3]
	return nil
}

func (vm *VM) opSwap() error {
	n := len(vm.stack)
	if n < 2 {
		return nil
	}
	vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
	return nil
}

// --- boolean / comparison -------------------------------------------------

func truthy(v Value) bool { return !v.IsZero() }

func (vm *VM) opAnd() error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	vm.push(boolValue(truthy(a) && truthy(b)))
	return nil
}

func (vm *VM) opOr() error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	vm.push(boolValue(truthy(a) || truthy(b)))
	return nil
}

func (vm *VM) opXor() error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	vm.push(boolValue(truthy(a) != truthy(b)))
	return nil
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

func (vm *VM) opEq() error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	vm.push(boolValue(a.Equal(b)))
	return nil
}

func (vm *VM) opNeq() error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	vm.push(boolValue(!a.Equal(b)))
	return nil
}

func (vm *VM) compareOp(pick func(lt, eq bool) bool) error {
	if len(vm.stack) < 2 {
		return nil
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	lt, err := a.Less(b)
	if err != nil {
		return err
	}
	vm.push(boolValue(pick(lt, a.Equal(b))))
	return nil
}

func (vm *VM) opLt() error  { return vm.compareOp(func(lt, eq bool) bool { return lt }) }
func (vm *VM) opLte() error { return vm.compareOp(func(lt, eq bool) bool { return lt || eq }) }
func (vm *VM) opGt() error  { return vm.compareOp(func(lt, eq bool) bool { return !lt && !eq }) }
func (vm *VM) opGte() error { return vm.compareOp(func(lt, eq bool) bool { return !lt }) }

// --- calls / returns -------------------------------------------------------

func (vm *VM) opCall() error {
	addr, ok := vm.pop()
	if !ok {
		return nil
	}
	if addr.Kind != KindInt {
		return fmt.Errorf("%w: CALL target is not an integer", ErrType)
	}
	vm.callStack = append(vm.callStack, Frame{Kind: FramePrimitive, ReturnPC: vm.pc})
	vm.pc = int(addr.Int.Uint64())
	return nil
}

func (vm *VM) opRet() error {
	if len(vm.callStack) == 0 {
		return nil
	}
	frame := vm.callStack[len(vm.callStack)-1]
	vm.callStack = vm.callStack[:len(vm.callStack)-1]
	vm.pc = frame.ReturnPC
	return nil
}

// --- storage ---------------------------------------------------------------

func (vm *VM) opSet() error {
	if len(vm.stack) < 2 {
		return nil
	}
	value, _ := vm.pop()
	key, _ := vm.pop()
	vm.Storage.Set(key.AsKey(), value)
	return nil
}

func (vm *VM) opGet() error {
	key, ok := vm.pop()
	if !ok {
		return nil
	}
	vm.push(vm.Storage.Get(key.AsKey()))
	return nil
}

func (vm *VM) opDelete() error {
	key, ok := vm.pop()
	if !ok {
		return nil
	}
	vm.Storage.Delete(key.AsKey())
	return nil
}

func (vm *VM) opHas() error {
	key, ok := vm.pop()
	if !ok {
		return nil
	}
	vm.push(boolValue(vm.Storage.Has(key.AsKey())))
	return nil
}

// --- lists -------------------------------------------------------------

func (vm *VM) opListAppend() error {
	if len(vm.stack) < 2 {
		return nil
	}
	value, _ := vm.pop()
	key, _ := vm.pop()
	name := key.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown list: %s", ErrKey, name)
	}
	lst := vm.Storage.Get(name)
	if lst.Kind != KindList {
		return fmt.Errorf("%w: %s is not a list", ErrType, name)
	}
	lst.List = append(lst.List, value)
	vm.Storage.Set(name, lst)
	return nil
}

func (vm *VM) opListRemove() error {
	if len(vm.stack) < 2 {
		return nil
	}
	value, _ := vm.pop()
	key, _ := vm.pop()
	name := key.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown list: %s", ErrKey, name)
	}
	lst := vm.Storage.Get(name)
	if lst.Kind != KindList {
		return fmt.Errorf("%w: %s is not a list", ErrType, name)
	}
	for i, item := range lst.List {
		if item.Equal(value) {
			lst.List = append(lst.List[:i], lst.List[i+1:]...)
			break
		}
	}
	vm.Storage.Set(name, lst)
	return nil
}

func (vm *VM) opListLen() error {
	key, ok := vm.pop()
	if !ok {
		return nil
	}
	name := key.AsKey()
	if !vm.Storage.Has(name) {
		vm.push(IntValue(0))
		return nil
	}
	lst := vm.Storage.Get(name)
	if lst.Kind != KindList {
		return fmt.Errorf("%w: %s is not a list", ErrType, name)
	}
	vm.push(IntValue(int64(len(lst.List))))
	return nil
}

func (vm *VM) opListGet() error {
	if len(vm.stack) < 2 {
		return nil
	}
	index, _ := vm.pop()
	key, _ := vm.pop()
	name := key.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown list: %s", ErrKey, name)
	}
	lst := vm.Storage.Get(name)
	if lst.Kind != KindList {
		return fmt.Errorf("%w: %s is not a list", ErrType, name)
	}
	if index.Kind != KindInt {
		return fmt.Errorf("%w: list index is not an integer", ErrType)
	}
	i := index.Int.Uint64()
	if i >= uint64(len(lst.List)) {
		return fmt.Errorf("%w: %d is an invalid index for %s", ErrIndex, i, name)
	}
	vm.push(lst.List[i])
	return nil
}

// --- dicts -------------------------------------------------------------

func (vm *VM) opDictSet() error {
	if len(vm.stack) < 3 {
		return nil
	}
	value, _ := vm.pop()
	keyName, _ := vm.pop()
	dictName, _ := vm.pop()
	name := dictName.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown dict: %s", ErrKey, name)
	}
	dict := vm.Storage.Get(name)
	if dict.Kind != KindDict {
		return fmt.Errorf("%w: %s is not a dict", ErrType, name)
	}
	dict.Dict[keyName.AsKey()] = value
	vm.Storage.Set(name, dict)
	return nil
}

func (vm *VM) opDictGet() error {
	if len(vm.stack) < 2 {
		return nil
	}
	keyName, _ := vm.pop()
	dictName, _ := vm.pop()
	name := dictName.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown dict: %s", ErrKey, name)
	}
	dict := vm.Storage.Get(name)
	if dict.Kind != KindDict {
		return fmt.Errorf("%w: %s is not a dict", ErrType, name)
	}
	v, ok := dict.Dict[keyName.AsKey()]
	if !ok {
		return fmt.Errorf("%w: %s not found in %s", ErrKey, keyName.AsKey(), name)
	}
	vm.push(v)
	return nil
}

func (vm *VM) opDictKeys() error {
	dictName, ok := vm.pop()
	if !ok {
		return nil
	}
	name := dictName.AsKey()
	if !vm.Storage.Has(name) {
		return fmt.Errorf("%w: unknown dict: %s", ErrKey, name)
	}
	dict := vm.Storage.Get(name)
	if dict.Kind != KindDict {
		return fmt.Errorf("%w: %s is not a dict", ErrType, name)
	}
	keys := make([]Value, 0, len(dict.Dict))
	for k := range dict.Dict {
		keys = append(keys, StrValue(k))
	}
	vm.push(ListValue(keys))
	return nil
}

// --- loops -------------------------------------------------------------

// opForLoop starts a bounded loop: it records the counter variable name,
// iteration limit and the current pc (the loop body's first instruction)
// and resets the counter to 0.
func (vm *VM) opForLoop() error {
	if len(vm.stack) < 2 {
		return nil
	}
	iterations, _ := vm.pop()
	counterVar, _ := vm.pop()
	if iterations.Kind != KindInt || iterations.IsZero() {
		return fmt.Errorf("%w: invalid loop bound: %s", ErrValue, iterations.String())
	}
	startPC := vm.pc
	vm.loopStack = append(vm.loopStack, LoopFrame{
		CounterName:    counterVar.AsKey(),
		IterationLimit: int64(iterations.Int.Uint64()),
		LoopStartPC:    startPC,
	})
	vm.Storage.Set(counterVar.AsKey(), IntValue(0))
	return nil
}

// opBreakLoop pops the active loop frame and jumps to its LoopStartPC.
//
// LoopFrame only records the loop's start position (FOR_LOOP never
// computes or stores an end-of-loop address), so "break" re-enters the
// loop header instead of exiting past the loop body. A Pena `break`
// statement therefore does not behave like a conventional loop break.
func (vm *VM) opBreakLoop() error {
	if len(vm.loopStack) == 0 {
		return nil
	}
	frame := vm.loopStack[len(vm.loopStack)-1]
	vm.loopStack = vm.loopStack[:len(vm.loopStack)-1]
	vm.pc = frame.LoopStartPC
	return nil
}

// opContinueLoop increments the loop counter and jumps back to the loop
// start, or pops the loop frame and falls through once the counter would
// reach the iteration limit. A single opcode therefore plays the role of
// both "continue" and "end of loop" depending on the counter's value.
func (vm *VM) opContinueLoop() error {
	if len(vm.loopStack) == 0 {
		return nil
	}
	frame := vm.loopStack[len(vm.loopStack)-1]
	count := vm.Storage.Get(frame.CounterName)
	next := int64(0)
	if count.Kind == KindInt {
		next = int64(count.Int.Uint64())
	}
	if next+1 >= frame.IterationLimit {
		vm.loopStack = vm.loopStack[:len(vm.loopStack)-1]
		return nil
	}
	vm.Storage.Set(frame.CounterName, IntValue(next+1))
	vm.pc = frame.LoopStartPC
	return nil
}

// --- functions -------------------------------------------------------------

// opDefFunc registers a function's entry point, arity and parameter names,
// then skips over its body by scanning forward to the first RET opcode
// byte in the raw stream. The scan does not understand nesting: a function
// body containing another function definition terminates at that inner
// function's RET, not its own. This matches the reference compiler, which
// never emits nested function definitions, so the limitation is never
// exercised by PenaParser output but can be triggered by hand-assembled
// bytecode.
//
// The stack contract here is one operand wider than the reference
// define_function (which only ever read name and param_count): PenaParser
// also pushes the declared parameter-name list beneath them, so CALL_FUNC
// can bind arguments to the names the function body actually refers to
// (see opCallFunc). Hand-assembled programs that only push name and count
// leave this a no-op, the same as an arity-mismatched definition would.
func (vm *VM) opDefFunc() error {
	if len(vm.stack) < 3 {
		return nil
	}
	paramCount, _ := vm.pop()
	funcName, _ := vm.pop()
	paramNames, _ := vm.pop()

	if paramCount.Kind == KindInt {
		names := make([]string, 0, len(paramNames.List))
		for _, n := range paramNames.List {
			names = append(names, n.AsKey())
		}
		vm.Storage.DefineFunction(funcName.AsKey(), FunctionDef{
			PC:         vm.pc,
			ParamCount: int(paramCount.Int.Uint64()),
			ParamNames: names,
		})
	}

	for vm.pc < len(vm.bytecode) {
		v := vm.bytecode[vm.pc]
		if v.Kind == KindInt && Opcode(v.Int.Uint64()) == RET {
			break
		}
		vm.pc++
	}
	return nil
}

// opCallFunc invokes a user-defined function. ParamCount is checked for an
// exact match against the function's declared arity, then each argument is
// bound into the callee's Storage under its declared parameter name — e.g.
// calling `inc(n)` with a single argument binds that argument to `n` before
// jumping into the body, so `return n + 1` observes the caller's value
// rather than Storage's unbound-variable default. Arguments are also kept
// on the call frame's Params for introspection, though no opcode reads
// them back from there.
func (vm *VM) opCallFunc() error {
	if len(vm.stack) < 2 {
		return nil
	}
	paramCount, _ := vm.pop()
	funcName, _ := vm.pop()

	if paramCount.Kind != KindInt {
		return fmt.Errorf("%w: argument count is not an integer", ErrType)
	}
	name := funcName.AsKey()
	def, ok := vm.Storage.LookupFunction(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	argc := int(paramCount.Int.Uint64())
	if def.ParamCount != argc {
		return fmt.Errorf("%w: %s needs %d params", ErrValue, name, def.ParamCount)
	}

	params := make([]Value, 0, argc)
	for i := 0; i < argc; i++ {
		v, ok := vm.pop()
		if !ok {
			break
		}
		params = append(params, v)
	}

	for i, v := range params {
		if i < len(def.ParamNames) {
			vm.Storage.Set(def.ParamNames[i], v)
		}
	}

	vm.callStack = append(vm.callStack, Frame{
		Kind:     FrameFunction,
		ReturnPC: vm.pc,
		Params:   params,
	})
	vm.pc = def.PC
	return nil
}
