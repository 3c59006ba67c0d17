package core

import "errors"

// Sentinel error kinds. Every VM/parser/contract-manager failure wraps one
// of these via fmt.Errorf("...: %w", ...) so callers can errors.Is against
// the kind while still getting a specific message.
var (
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrArithmetic         = errors.New("arithmetic error")
	ErrType               = errors.New("type error")
	ErrKey                = errors.New("key error")
	ErrIndex              = errors.New("index error")
	ErrValue              = errors.New("value error")
	ErrUnknownFunction    = errors.New("unknown function")
	ErrContractExists     = errors.New("contract already exists")
	ErrUnknownContract    = errors.New("unknown contract")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)
