package core

import (
	"bytes"
	"testing"
)

func compileAndRun(t *testing.T, source string) (*VM, string) {
	t.Helper()
	p := NewPenaParser()
	bc, err := p.Parse(source)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	vm := NewVM(nil)
	var buf bytes.Buffer
	vm.SetOutput(&buf)
	if err := vm.Run(bc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return vm, buf.String()
}

func TestPenaAssignmentAndPrint(t *testing.T) {
	_, out := compileAndRun(t, `
x = 2 + 3
print(x)
`)
	if out != "5\n" {
		t.Fatalf("expected \"5\\n\", got %q", out)
	}
}

func TestPenaOperatorPrecedence(t *testing.T) {
	_, out := compileAndRun(t, `
print(2 + 3 * 4)
`)
	if out != "14\n" {
		t.Fatalf("expected \"14\\n\", got %q", out)
	}
}

func TestPenaListLiteral(t *testing.T) {
	_, out := compileAndRun(t, `
xs := [1, 2, 3]
print(xs)
`)
	if out == "" {
		t.Fatal("expected list to print something")
	}
}

// IF only ever compares its condition against the literal 1 (there is no
// comparison operator in this grammar to produce a real boolean), and a
// match skips its own guarded block rather than entering it: the branch
// whose condition evaluates to anything other than 1 is the one that
// runs, after which the whole if/elif/else chain exits immediately.
func TestPenaIfElseIfElseEntersOnMismatch(t *testing.T) {
	_, out := compileAndRun(t, `
if (0) {
	print(100)
} else if (1) {
	print(200)
} else {
	print(300)
}
`)
	if out != "100\n" {
		t.Fatalf("expected the first (mismatching) branch to run, got %q", out)
	}
}

func TestPenaIfElseIfElseFallsThroughToElse(t *testing.T) {
	_, out := compileAndRun(t, `
if (1) {
	print(100)
} else if (1) {
	print(200)
} else {
	print(300)
}
`)
	if out != "300\n" {
		t.Fatalf("expected both branches to match (skip) and fall to else, got %q", out)
	}
}

// while's condition is checked with the same match-skips/mismatch-enters
// IF semantics: the body keeps running for as long as n != 1, so with
// n starting at 3 the body runs twice (n=3, n=2) before n reaches 1 and
// the loop exits.
func TestPenaWhileLoop(t *testing.T) {
	_, out := compileAndRun(t, `
n = 3
x = 0
while (n) {
	x = x + 1
	n = n - 1
}
print(x)
`)
	if out != "2\n" {
		t.Fatalf("expected \"2\\n\", got %q", out)
	}
}

func TestPenaForLoopStartTokenIsIgnored(t *testing.T) {
	// The declared start value (5) is parsed but never used: FOR_LOOP
	// always resets the counter variable to 0, matching the reference
	// grammar exactly.
	_, out := compileAndRun(t, `
count = 0
for i, 5 -> 3 {
	count = count + 1
}
print(count)
`)
	if out != "3\n" {
		t.Fatalf("expected the loop to run end(=3) times regardless of start, got %q", out)
	}
}

func TestPenaFunctionCallAndReturn(t *testing.T) {
	_, out := compileAndRun(t, `
function greet(name) {
	print(1)
	return 1
}
woof greet("world")
`)
	if out != "1\n" {
		t.Fatalf("expected \"1\\n\", got %q", out)
	}
}

// TestPenaFunctionCallBindsParameterByName pins down that woof call
// arguments are bound into the callee's Storage under the function's
// declared parameter name, so the body can reference it by that name
// instead of always reading Storage's unbound-variable default.
func TestPenaFunctionCallBindsParameterByName(t *testing.T) {
	_, out := compileAndRun(t, `
function greet(name) {
	print(name)
}
woof greet("world")
`)
	if out != "world\n" {
		t.Fatalf("expected \"world\\n\", got %q", out)
	}
}
