package core

import (
	"bytes"
	"errors"
	"testing"
)

func runProgram(t *testing.T, bc Bytecode) *VM {
	t.Helper()
	vm := NewVM(nil)
	var buf bytes.Buffer
	vm.SetOutput(&buf)
	if err := vm.Run(bc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return vm
}

func TestVMArithmetic(t *testing.T) {
	cases := []struct {
		name string
		bc   Bytecode
		want int64
	}{
		{"add", Bytecode{Op(PUSH), IntValue(2), Op(PUSH), IntValue(3), Op(ADD)}, 5},
		{"sub", Bytecode{Op(PUSH), IntValue(5), Op(PUSH), IntValue(3), Op(SUB)}, 2},
		{"mul", Bytecode{Op(PUSH), IntValue(4), Op(PUSH), IntValue(3), Op(MUL)}, 12},
		{"div", Bytecode{Op(PUSH), IntValue(9), Op(PUSH), IntValue(3), Op(DIV)}, 3},
		{"mod", Bytecode{Op(PUSH), IntValue(9), Op(PUSH), IntValue(4), Op(MOD)}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			vm := runProgram(t, c.bc)
			got := vm.Stack()
			if len(got) != 1 || got[0].Int.Uint64() != uint64(c.want) {
				t.Fatalf("expected stack [%d], got %v", c.want, got)
			}
		})
	}
}

func TestVMDivisionByZeroIsHardError(t *testing.T) {
	vm := NewVM(nil)
	err := vm.Run(Bytecode{Op(PUSH), IntValue(1), Op(PUSH), IntValue(0), Op(DIV)})
	if !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected ErrArithmetic, got %v", err)
	}
}

func TestVMStackUnderflowIsSilent(t *testing.T) {
	vm := NewVM(nil)
	if err := vm.Run(Bytecode{Op(ADD)}); err != nil {
		t.Fatalf("underflowed ADD should be a no-op, got %v", err)
	}
	if len(vm.Stack()) != 0 {
		t.Fatalf("expected empty stack, got %v", vm.Stack())
	}
}

func TestVMUnknownOpcode(t *testing.T) {
	vm := NewVM(nil)
	err := vm.Run(Bytecode{IntValue(0x7E)})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("expected ErrUnknownOpcode, got %v", err)
	}
}

// DROP is documented as a synonym for POP: pop and discard, no-op if empty.
func TestVMDropDiscardsTop(t *testing.T) {
	vm := runProgram(t, Bytecode{Op(PUSH), IntValue(7), Op(PUSH), IntValue(9), Op(DROP)})
	got := vm.Stack()
	if len(got) != 1 || got[0].Int.Uint64() != 7 {
		t.Fatalf("expected DROP to discard only the top value, got %v", got)
	}
}

func TestVMDropOnEmptyStackIsNoOp(t *testing.T) {
	vm := runProgram(t, Bytecode{Op(DROP)})
	if len(vm.Stack()) != 0 {
		t.Fatalf("expected empty stack to remain empty after DROP, got %v", vm.Stack())
	}
}

// DUP is the one documented bug this implementation corrects rather than
// preserves: it must duplicate the top value, not the rest of the stack.
func TestVMDupDuplicatesTop(t *testing.T) {
	vm := runProgram(t, Bytecode{Op(PUSH), IntValue(7), Op(DUP)})
	got := vm.Stack()
	if len(got) != 2 || !got[0].Equal(got[1]) || got[1].Int.Uint64() != 7 {
		t.Fatalf("expected [7 7], got %v", got)
	}
}

func TestVMSetGet(t *testing.T) {
	vm := runProgram(t, Bytecode{
		Op(PUSH), StrValue("x"), Op(PUSH), IntValue(42), Op(SET),
		Op(PUSH), StrValue("x"), Op(GET),
	})
	got := vm.Stack()
	if len(got) != 1 || got[0].Int.Uint64() != 42 {
		t.Fatalf("expected [42], got %v", got)
	}
}

func TestVMGetUnboundDefaultsToZero(t *testing.T) {
	vm := runProgram(t, Bytecode{Op(PUSH), StrValue("missing"), Op(GET)})
	got := vm.Stack()
	if len(got) != 1 || !got[0].IsZero() {
		t.Fatalf("expected [0], got %v", got)
	}
}

func TestVMListAppendAndGet(t *testing.T) {
	vm := runProgram(t, Bytecode{
		Op(PUSH), StrValue("xs"), Op(PUSH), ListValue(nil), Op(SET),
		Op(PUSH), StrValue("xs"), Op(PUSH), IntValue(9), Op(LIST_APPEND),
		Op(PUSH), StrValue("xs"), Op(PUSH), IntValue(0), Op(LIST_GET),
	})
	got := vm.Stack()
	if len(got) != 1 || got[0].Int.Uint64() != 9 {
		t.Fatalf("expected [9], got %v", got)
	}
}

func TestVMListGetOutOfRangeIsError(t *testing.T) {
	vm := NewVM(nil)
	err := vm.Run(Bytecode{
		Op(PUSH), StrValue("xs"), Op(PUSH), ListValue(nil), Op(SET),
		Op(PUSH), StrValue("xs"), Op(PUSH), IntValue(0), Op(LIST_GET),
	})
	if !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestVMForLoopAccumulates(t *testing.T) {
	// for i, 0 -> 3 { total = total + 1; continue }
	vm := runProgram(t, Bytecode{
		Op(PUSH), StrValue("total"), Op(PUSH), IntValue(0), Op(SET),
		Op(PUSH), StrValue("i"), Op(PUSH), IntValue(3), Op(FOR_LOOP),
		Op(PUSH), StrValue("total"),
		Op(PUSH), StrValue("total"), Op(GET), Op(PUSH), IntValue(1), Op(ADD),
		Op(SET),
		Op(CONTINUE_LOOP),
		Op(PUSH), StrValue("total"), Op(GET),
	})
	got := vm.Stack()
	if len(got) != 1 || got[0].Int.Uint64() != 3 {
		t.Fatalf("expected loop to run 3 times, got %v", got)
	}
}

// BREAK_LOOP reproduces the reference implementation's documented defect:
// LoopFrame only ever records the loop's start pc, so "break" jumps back
// into the loop body's first instruction instead of past it. A body that
// increments a counter once before breaking ends up running that
// increment twice: once normally, once more as BREAK_LOOP re-enters the
// body (the loop frame is already gone by then, so nothing jumps back a
// second time and execution simply falls through afterward).
func TestVMBreakLoopReenterstLoopBodyOnce(t *testing.T) {
	p := NewPenaParser()
	bc, err := p.Parse(`
total = 0
for i, 0 -> 3 {
	total = total + 1
	break
}
print(total)
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var buf bytes.Buffer
	vm := NewVM(nil)
	vm.SetOutput(&buf)
	if err := vm.Run(bc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := buf.String(); got != "2\n" {
		t.Fatalf("expected the preserved break bug to print 2, got %q", got)
	}
}

func TestVMCallFuncRoundTrip(t *testing.T) {
	p := NewPenaParser()
	bc, err := p.Parse(`
function add(a, b) {
	return 1
}
woof add(1, 2)
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	vm := NewVM(nil)
	if err := vm.Run(bc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := vm.Stack()
	if len(got) != 1 || got[0].Int.Uint64() != 1 {
		t.Fatalf("expected [1], got %v", got)
	}
}

func TestVMCallFuncArityMismatch(t *testing.T) {
	p := NewPenaParser()
	bc, err := p.Parse(`
function add(a, b) {
	return 1
}
woof add(1)
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	vm := NewVM(nil)
	if err := vm.Run(bc); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for arity mismatch, got %v", err)
	}
}

func TestVMStepBudgetExceeded(t *testing.T) {
	vm := NewVM(nil)
	vm.SetBudget(NewStepBudget(2))
	err := vm.Run(Bytecode{Op(NOP), Op(NOP), Op(NOP)})
	if !errors.Is(err, ErrStepBudgetExceeded) {
		t.Fatalf("expected ErrStepBudgetExceeded, got %v", err)
	}
}
