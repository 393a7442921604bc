// Package ir defines the managed IR tree this JIT consumes.
//
// The IR producer — the component that parses a method's bytecode into this
// tree — is an external collaborator; this package only fixes the shape of
// what it hands over.
package ir

// Opcode identifies a CIL instruction.
type Opcode int

const (
	OpNop Opcode = iota

	OpLdcI4 // push a constant int32 (Inst.IVal)
	OpLdcI8 // push a constant int64 (Inst.LVal)

	OpLdArg // push argument Inst.Index
	OpLdLoc // push local Inst.Index
	OpStLoc // pop into local Inst.Index

	OpAdd
	OpSub
	OpMul
	OpDiv // no SPE opcode translation exists: the SPE has no integer divide unit
	OpAnd
	OpOr
	OpXor
	OpNeg

	OpMulI8 // 64-bit multiply, low 64 bits of the product

	OpCeq // push 1 if equal else 0
	OpClt
	OpCgt

	OpBr     // unconditional branch to Inst.Target
	OpBrtrue // pop, branch to Inst.Target if nonzero
	OpBrfalse

	OpCall // invoke Inst.Callee, consuming its argument count from the stack
	OpRet  // pop return value (if any) and return
)

// Inst is one node of the IR tree: a CIL instruction plus the ordered
// children that produce its stack operands. Children are translated before
// the instruction itself (post-order).
type Inst struct {
	Op   Opcode
	Kids []*Inst

	Index  int    // OpLdArg / OpLdLoc / OpStLoc operand index
	IVal   int32  // OpLdcI4 operand
	LVal   int64  // OpLdcI8 operand
	Target *Inst  // OpBr/OpBrtrue/OpBrfalse branch target (identity, not offset)
	Callee string // OpCall callee method identity
	NArgs  int    // OpCall argument count
	HasRet bool   // OpRet carries a return value
}

// Local describes one local-variable slot.
type Local struct {
	ZeroInit bool
}

// Param describes one parameter slot. Parameters carry no extra metadata
// today; the type exists so callers don't depend on Method.NumArgs alone.
type Param struct{}

// Method is one compiled method's input: an ordered list of top-level
// instructions (the method body), its declared locals, and its parameters.
type Method struct {
	Name   string
	Locals []Local
	Params []Param
	Body   []*Inst
}

// NumLocals returns the number of declared local slots.
func (m *Method) NumLocals() int { return len(m.Locals) }

// NumArgs returns the number of declared parameter slots.
func (m *Method) NumArgs() int { return len(m.Params) }

// Walk calls fn for every instruction in the tree rooted at each element of
// body, in pre-order (parent before children). It is a convenience for
// diagnostics and tests; the compiler itself drives its own post-order walk.
func Walk(body []*Inst, fn func(*Inst)) {
	for _, n := range body {
		walkOne(n, fn)
	}
}

func walkOne(n *Inst, fn func(*Inst)) {
	if n == nil {
		return
	}
	fn(n)
	for _, k := range n.Kids {
		walkOne(k, fn)
	}
}
