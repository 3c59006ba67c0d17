package core

import (
	"fmt"
	"strconv"
	"strings"
)

// InstructionListParser compiles the textual instruction-list form into
// Bytecode. Each non-blank, non-comment line holds one instruction written
// as `[MNEMONIC]` or `[MNEMONIC, operand]`, e.g.:
//
//	[PUSH, 2]
//	[PUSH, 3]
//	[ADD]
//	[PRINT]
//	[HALT]
//
// Operands are PUSH's inline values (int literal, quoted string, bare
// identifier treated as a string, or `[]`/`{}` for an empty list/dict
// literal) or, for JMP/IF fixed-position operands, raw integers. This is the assembly-level counterpart to PenaParser's
// higher-level source language: both ultimately produce the same Bytecode
// shape the VM executes.
type InstructionListParser struct{}

// NewInstructionListParser returns a ready-to-use parser. It carries no
// state between calls to Parse.
func NewInstructionListParser() *InstructionListParser {
	return &InstructionListParser{}
}

// Parse compiles source into Bytecode, or returns an error naming the
// first malformed or unrecognized line.
func (p *InstructionListParser) Parse(source string) (Bytecode, error) {
	var out Bytecode
	for lineNo, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		instr, err := parseInstructionLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		out = append(out, instr...)
	}
	return out, nil
}

func parseInstructionLine(line string) (Bytecode, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("%w: expected [MNEMONIC, operand?], got %q", ErrValue, line)
	}
	inner := line[1 : len(line)-1]
	fields := splitTopLevel(inner)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrValue)
	}

	mnemonic := strings.TrimSpace(fields[0])
	op, ok := ParseOpcode(mnemonic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, mnemonic)
	}

	instr := Bytecode{Op(op)}
	if len(fields) == 1 {
		return instr, nil
	}
	operand, err := parseOperand(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, err
	}
	return append(instr, operand), nil
}

// splitTopLevel splits s on commas that are not inside a quoted string.
func splitTopLevel(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func parseOperand(tok string) (Value, error) {
	switch {
	case tok == "[]":
		return ListValue(nil), nil
	case tok == "{}":
		return DictValue(nil), nil
	case strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2:
		return StrValue(tok[1 : len(tok)-1]), nil
	default:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return IntValue(n), nil
		}
		return StrValue(tok), nil
	}
}
