package codegen

import (
	"spejit/instr"
	"spejit/ir"
)

// Mapper is the OpCodeMapper (spec.md §4.2): a stateful translator that
// maintains a virtual operand stack over a CompiledMethod's register window
// and exposes one translation operation per supported CIL opcode.
type Mapper struct {
	cm *CompiledMethod

	locals, args int

	// stack is the virtual operand stack: stack[i] is the physical register
	// holding CIL stack slot i. Its registers start at lv0+locals+args.
	stack []instr.Reg

	// hwDepth is the physical, memory-backed push/pop depth used by
	// PushStack/PopStack during register preservation; independent of the
	// virtual operand stack, which lives entirely in registers.
	hwDepth int
}

func newMapper(cm *CompiledMethod, locals, args int) *Mapper {
	return &Mapper{cm: cm, locals: locals, args: args}
}

// translation is one opcode's translator: consumes whatever operands the
// opcode needs from the top of the virtual stack and appends SPE code.
type translation func(m *Mapper, n *ir.Inst) error

// opcodeTable is the module-level registration described in spec.md §5: an
// immutable, exhaustive mapping built once at startup (no reflection — an
// explicit table, per spec.md §9 Design Notes). Safe for concurrent readers.
var opcodeTable = map[ir.Opcode]translation{
	ir.OpNop:      translateNop,
	ir.OpLdcI4:    translateLdcI4,
	ir.OpLdcI8:    translateLdcI8,
	ir.OpLdArg:    translateLdArg,
	ir.OpLdLoc:    translateLdLoc,
	ir.OpStLoc:    translateStLoc,
	ir.OpAdd:      translateBinOp(instr.Add),
	ir.OpSub:      translateBinOp(instr.Sub),
	ir.OpAnd:      translateBinOp(instr.And),
	ir.OpOr:       translateBinOp(instr.Or),
	ir.OpXor:      translateBinOp(instr.Xor),
	ir.OpMul:      translateBinOp(instr.MulLow),
	ir.OpMulI8:    translateMulI8,
	ir.OpNeg:      translateNeg,
	ir.OpCeq:      translateCompare(ir.OpCeq),
	ir.OpClt:      translateCompare(ir.OpClt),
	ir.OpCgt:      translateCompare(ir.OpCgt),
	ir.OpBr:       translateBr,
	ir.OpBrtrue:   translateBrCond(true),
	ir.OpBrfalse:  translateBrCond(false),
	ir.OpCall:     translateCall,
	ir.OpRet:      translateRet,
}

// opcodeName renders an opcode identifier for UnknownOpcode reporting; kept
// close to the table so new opcodes can't be added to one without the other
// being noticed in review.
func opcodeName(op ir.Opcode) int { return int(op) }

// dispatch looks up and runs the translator for n.Op, translating n's
// children first (post-order, spec.md §5's traversal contract).
func (m *Mapper) dispatch(n *ir.Inst) error {
	for _, k := range n.Kids {
		if err := m.dispatch(k); err != nil {
			return err
		}
	}
	m.cm.recordOffset(n, m.cm.Buf.Len())
	fn, ok := opcodeTable[n.Op]
	if !ok {
		return &UnknownOpcode{Opcode: opcodeName(n.Op), Method: m.cm.Name()}
	}
	return fn(m, n)
}

// --- virtual stack primitives ---

// pushVirtual allocates the next virtual-stack register, updates
// MaxStackDepth, and enforces the register-window invariant.
func (m *Mapper) pushVirtual() (instr.Reg, error) {
	depth := len(m.stack) + 1
	if m.locals+m.args+depth > MaxLVRegisters {
		return 0, &TooManyRegisters{Method: m.cm.Name(), Locals: m.locals, Args: m.args, MaxRegisters: MaxLVRegisters}
	}
	reg := lv0 + instr.Reg(m.locals+m.args+len(m.stack))
	m.stack = append(m.stack, reg)
	if combined := m.locals + m.args + len(m.stack); combined > m.cm.MaxStackDepth {
		m.cm.MaxStackDepth = combined
	}
	return reg, nil
}

// popVirtual removes and returns the top virtual-stack register.
func (m *Mapper) popVirtual() instr.Reg {
	n := len(m.stack) - 1
	r := m.stack[n]
	m.stack = m.stack[:n]
	return r
}

// PushStack spills a callee-owned register to the physical frame at the
// current hardware depth and advances it (spec.md §4.2 helper primitives).
func (m *Mapper) PushStack(reg instr.Reg) {
	m.cm.Buf.Append(instr.StoreQuadwordDisplaced(reg, instr.RegSP, int32(m.hwDepth)))
	m.hwDepth++
}

// PopStack reloads a callee-owned register from the physical frame and
// retreats the hardware depth, the symmetric inverse of PushStack.
func (m *Mapper) PopStack(reg instr.Reg) {
	m.hwDepth--
	m.cm.Buf.Append(instr.LoadQuadwordDisplaced(reg, instr.RegSP, int32(m.hwDepth)))
}

// AllocateStackSlot returns the physical frame depth index the next
// PushStack call would occupy.
func (m *Mapper) AllocateStackSlot() int { return m.hwDepth }

// CopyRegister emits a register-register move from src to dst.
func (m *Mapper) CopyRegister(src, dst instr.Reg) {
	m.cm.Buf.Append(instr.Move(dst, src))
}

// ClearRegister zero-fills reg via an immediate-load-zero.
func (m *Mapper) ClearRegister(reg instr.Reg) {
	m.cm.Buf.Append(instr.ClearRegister(reg))
}

func (m *Mapper) localReg(i int) instr.Reg { return lv0 + instr.Reg(i) }
func (m *Mapper) argReg(i int) instr.Reg   { return lv0 + instr.Reg(m.locals+i) }

// --- per-opcode translations ---

func translateNop(m *Mapper, n *ir.Inst) error { return nil }

func loadImmediate32(m *Mapper, rt instr.Reg, v int32) {
	for _, i := range instr.LoadImmediate32(rt, v) {
		m.cm.Buf.Append(i)
	}
}

func translateLdcI4(m *Mapper, n *ir.Inst) error {
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	loadImmediate32(m, rt, n.IVal)
	return nil
}

func translateLdcI8(m *Mapper, n *ir.Inst) error {
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	// 64-bit immediates are materialized as two 32-bit halves folded into
	// the same register with the low half loaded last, matching the
	// little-endian-last-wins convention used throughout this package's
	// RI16 immediate loads.
	loadImmediate32(m, rt, int32(n.LVal>>32))
	m.cm.Buf.Append(instr.ShiftLeft(rt, rt, 32))
	scratchReg := scratch[0]
	loadImmediate32(m, scratchReg, int32(n.LVal))
	m.cm.Buf.Append(instr.Or(rt, rt, scratchReg))
	return nil
}

func translateLdArg(m *Mapper, n *ir.Inst) error {
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	m.CopyRegister(m.argReg(n.Index), rt)
	return nil
}

func translateLdLoc(m *Mapper, n *ir.Inst) error {
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	m.CopyRegister(m.localReg(n.Index), rt)
	return nil
}

func translateStLoc(m *Mapper, n *ir.Inst) error {
	src := m.popVirtual()
	m.CopyRegister(src, m.localReg(n.Index))
	return nil
}

func translateBinOp(emit func(rt, ra, rb instr.Reg) instr.Instruction) translation {
	return func(m *Mapper, n *ir.Inst) error {
		rb := m.popVirtual()
		ra := m.popVirtual()
		rt, err := m.pushVirtual()
		if err != nil {
			return err
		}
		m.cm.Buf.Append(emit(rt, ra, rb))
		return nil
	}
}

func translateNeg(m *Mapper, n *ir.Inst) error {
	ra := m.popVirtual()
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	m.ClearRegister(scratch[0])
	m.cm.Buf.Append(instr.Sub(rt, scratch[0], ra))
	return nil
}

func translateCompare(op ir.Opcode) translation {
	return func(m *Mapper, n *ir.Inst) error {
		rb := m.popVirtual()
		ra := m.popVirtual()
		rt, err := m.pushVirtual()
		if err != nil {
			return err
		}
		// Produce 1/0 via subtraction + sign/zero test, kept as a single
		// recognizable shape rather than a family of condition-code ops
		// the synthetic ISA doesn't define.
		switch op {
		case ir.OpCeq:
			m.cm.Buf.Append(instr.Sub(scratch[0], ra, rb))
			m.ClearRegister(rt)
			m.cm.Buf.Append(instr.BranchIfNotZero(scratch[0], 2))
			m.cm.Buf.Append(instr.LoadImmediate(rt, 1))
		case ir.OpClt:
			m.emitSignTest(rt, ra, rb) // a - b negative <=> a < b
		case ir.OpCgt:
			m.emitSignTest(rt, rb, ra) // b - a negative <=> a > b
		}
		return nil
	}
}

// emitSignTest reduces (lhs - rhs) to a canonical 0/1 in rt: 1 if the
// difference is negative, 0 otherwise. There's no signed branch in this
// ISA, so the sign bit is rotated down into bit 0 and isolated with an AND
// before the same branch+load shape OpCeq uses above for its zero test.
func (m *Mapper) emitSignTest(rt, lhs, rhs instr.Reg) {
	m.cm.Buf.Append(instr.Sub(scratch[0], lhs, rhs))
	m.cm.Buf.Append(instr.RotateLeft(scratch[0], scratch[0], 1))
	m.cm.Buf.Append(instr.LoadImmediate(scratch[1], 1))
	m.cm.Buf.Append(instr.And(scratch[0], scratch[0], scratch[1]))
	m.ClearRegister(rt)
	m.cm.Buf.Append(instr.BranchIfZero(scratch[0], 2))
	m.cm.Buf.Append(instr.LoadImmediate(rt, 1))
}

// translateMulI8 expands a 64x64->64 multiply into the four 16-bit-lane
// partial-product pyramid described in spec.md §4.2. Lane indices run
// 0 (most significant 16 bits) to 3 (least significant).
func translateMulI8(m *Mapper, n *ir.Inst) error {
	b := m.popVirtual()
	a := m.popVirtual()
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}

	m.ClearRegister(rt)
	m.emitMulTermPair(rt, a, b, []lanePair{{3, 3}}, 0)                          // a3*b3
	m.emitMulTermPair(rt, a, b, []lanePair{{3, 2}, {2, 3}}, 16)                 // a3*b2 + a2*b3
	m.emitMulTermPair(rt, a, b, []lanePair{{3, 1}, {2, 2}, {1, 3}}, 32)         // a3*b1 + a2*b2 + a1*b3
	m.emitMulTermPair(rt, a, b, []lanePair{{2, 1}, {1, 2}, {3, 0}, {0, 3}}, 48) // a2*b1 + a1*b2 + a3*b0 + a0*b3
	return nil
}

type lanePair struct{ ai, bi int32 }

// emitMulTermPair extracts each (ai, bi) lane pair, multiplies, accumulates
// the partial sum in scratch, shifts it into position, and adds it into rt.
// Partial products wider than 32 bits are carried as unsigned 64-bit
// additions; truncating-multiply semantics drop any carry out of bit 63,
// which falls out naturally since rt is never widened beyond one register.
func (m *Mapper) emitMulTermPair(rt, a, b instr.Reg, pairs []lanePair, shift int32) {
	acc := scratch[4]
	m.ClearRegister(acc)
	for _, p := range pairs {
		la, lb := scratch[2], scratch[3]
		m.cm.Buf.Append(instr.ExtractLane(la, a, p.ai))
		m.cm.Buf.Append(instr.ExtractLane(lb, b, p.bi))
		m.cm.Buf.Append(instr.MulUnsigned(la, la, lb))
		m.cm.Buf.Append(instr.Add(acc, acc, la))
	}
	if shift > 0 {
		m.cm.Buf.Append(instr.ShiftLeft(acc, acc, shift))
	}
	m.cm.Buf.Append(instr.Add(rt, rt, acc))
}

func translateBr(m *Mapper, n *ir.Inst) error {
	idx := m.cm.Buf.Append(instr.Branch(0))
	m.cm.BranchFixups = append(m.cm.BranchFixups, BranchFixup{SourceIndex: idx, Target: n.Target})
	return nil
}

func translateBrCond(onTrue bool) translation {
	return func(m *Mapper, n *ir.Inst) error {
		cond := m.popVirtual()
		var idx int
		if onTrue {
			idx = m.cm.Buf.Append(instr.BranchIfNotZero(cond, 0))
		} else {
			idx = m.cm.Buf.Append(instr.BranchIfZero(cond, 0))
		}
		m.cm.BranchFixups = append(m.cm.BranchFixups, BranchFixup{SourceIndex: idx, Target: n.Target})
		return nil
	}
}

func translateCall(m *Mapper, n *ir.Inst) error {
	// Arguments are already in their virtual-stack registers in call order;
	// copy them down into the argument-register window per the ABI.
	args := make([]instr.Reg, n.NArgs)
	for i := n.NArgs - 1; i >= 0; i-- {
		args[i] = m.popVirtual()
	}
	for i, r := range args {
		m.CopyRegister(r, instr.RegArg0+instr.Reg(i))
	}
	// spec.md §4.4 step 5: the call branches to the call handler, with the
	// callee's identity carried in a neighbouring register load that the
	// linker patches once it knows the callee's resolved base offset.
	idLoadIdx := m.cm.Buf.Append(instr.LoadImmediate(scratch[0], 0))
	idx := m.cm.Buf.Append(instr.BranchAndSetLink(0))
	m.cm.CallFixups = append(m.cm.CallFixups, CallFixup{SourceIndex: idx, IDLoadIndex: idLoadIdx, Callee: n.Callee})
	rt, err := m.pushVirtual()
	if err != nil {
		return err
	}
	m.CopyRegister(instr.RegArg0, rt)
	return nil
}

func translateRet(m *Mapper, n *ir.Inst) error {
	if n.HasRet {
		v := m.popVirtual()
		m.CopyRegister(v, instr.RegArg0)
	}
	// MethodCompiler's epilogue synthesis appends the actual `bi` to LR;
	// nothing more is emitted here.
	return nil
}
