package codegen

import "fmt"

// The error taxonomy from spec.md §7. All are compile-time and fatal to the
// current JIT call; no partial output is emitted when one is returned.

// UnknownOpcode reports an IR opcode absent from the translation table.
type UnknownOpcode struct {
	Opcode int
	Method string
}

func (e *UnknownOpcode) Error() string {
	return fmt.Sprintf("method %q: unknown opcode %d", e.Method, e.Opcode)
}

// TooManyRegisters reports that locals+args exceeds the preserved-register
// window (spec.md §3 register allocation invariants, MAX_LV_REGISTERS).
type TooManyRegisters struct {
	Method        string
	Locals, Args  int
	MaxRegisters  int
}

func (e *TooManyRegisters) Error() string {
	return fmt.Sprintf("method %q: locals(%d)+args(%d) exceeds %d preserved registers",
		e.Method, e.Locals, e.Args, e.MaxRegisters)
}

// BranchOutOfRange reports a branch whose displacement does not fit the
// 16-bit immediate field.
type BranchOutOfRange struct {
	Method               string
	SourceOffset, Target int
	Displacement         int
}

func (e *BranchOutOfRange) Error() string {
	return fmt.Sprintf("method %q: branch at instruction %d to %d has out-of-range displacement %d",
		e.Method, e.SourceOffset, e.Target, e.Displacement)
}

// UnresolvedBranchTarget reports a branch fixup whose target IR instruction
// was never emitted (spec.md §9 Open Questions).
type UnresolvedBranchTarget struct {
	Method       string
	SourceOffset int
}

func (e *UnresolvedBranchTarget) Error() string {
	return fmt.Sprintf("method %q: branch at instruction %d targets an instruction that was never emitted",
		e.Method, e.SourceOffset)
}

// MissingCallee reports a call fixup whose callee is absent from the
// linker's input set.
type MissingCallee struct {
	Caller, Callee string
}

func (e *MissingCallee) Error() string {
	return fmt.Sprintf("caller %q: callee %q not found in linker input", e.Caller, e.Callee)
}

// TextSerializationFailure wraps a failure from the disassembly sink.
type TextSerializationFailure struct {
	Err error
}

func (e *TextSerializationFailure) Error() string {
	return fmt.Sprintf("text serialization failed: %v", e.Err)
}

func (e *TextSerializationFailure) Unwrap() error { return e.Err }

// StreamWriteFailure wraps a failure from the final output sink.
type StreamWriteFailure struct {
	Err error
}

func (e *StreamWriteFailure) Error() string {
	return fmt.Sprintf("stream write failed: %v", e.Err)
}

func (e *StreamWriteFailure) Unwrap() error { return e.Err }
