package codegen

import (
	"spejit/instr"
	"spejit/ir"
)

// CompileMethod drives translation of one IR method (spec.md §4.3): it
// synthesizes the prologue and epilogue, walks the body in post-order via
// the Mapper, tracks peak stack depth, and resolves intra-method branches.
// On any failure no partial CompiledMethod is returned.
func CompileMethod(src *ir.Method) (*CompiledMethod, error) {
	locals := src.NumLocals()
	args := src.NumArgs()
	if locals+args > MaxLVRegisters {
		return nil, &TooManyRegisters{Method: src.Name, Locals: locals, Args: args, MaxRegisters: MaxLVRegisters}
	}

	cm := newCompiledMethod(src)
	m := newMapper(cm, locals, args)

	prologueIdx := [3]int{
		cm.Buf.Append(instr.StoreQuadwordDisplaced(instr.RegLR, instr.RegSP, 1)),
		cm.Buf.Append(instr.StoreQuadwordDisplaced(instr.RegSP, instr.RegSP, 0)),
		cm.Buf.Append(instr.AddImm(instr.RegSP, instr.RegSP, 0)),
	}

	for i := 0; i < locals+args; i++ {
		m.PushStack(lv0 + instr.Reg(i))
	}

	for i, loc := range src.Locals {
		if loc.ZeroInit {
			m.ClearRegister(lv0 + instr.Reg(i))
		}
	}

	for i := 0; i < args; i++ {
		m.CopyRegister(arg0+instr.Reg(i), lv0+instr.Reg(locals+i))
	}

	for _, top := range src.Body {
		if err := m.dispatch(top); err != nil {
			return nil, err
		}
	}

	for i := locals + args - 1; i >= 0; i-- {
		m.PopStack(lv0 + instr.Reg(i))
	}

	epilogueIdx := [3]int{
		cm.Buf.Append(instr.AddImm(instr.RegSP, instr.RegSP, 0)),
		cm.Buf.Append(instr.LoadQuadwordDisplaced(instr.RegLR, instr.RegSP, 1)),
		cm.Buf.Append(instr.BranchIndirect(instr.RegLR)),
	}

	patchFrameSize(cm, prologueIdx, epilogueIdx)

	if err := resolveBranchFixups(cm); err != nil {
		return nil, err
	}

	return cm, nil
}

// patchFrameSize implements spec.md §4.3 step 8: with d = MaxStackDepth,
// patch the prologue's save-SP displacement, the prologue's SP decrement,
// and the epilogue's SP increment. REGISTER_SIZE = 16 bytes.
func patchFrameSize(cm *CompiledMethod, prologueIdx, epilogueIdx [3]int) {
	d := int32(cm.MaxStackDepth)

	saveSP := cm.Buf.At(prologueIdx[1])
	saveSP.SetImm10(-(d * RegisterSize / 4))
	cm.Buf.Patch(prologueIdx[1], saveSP)

	decSP := cm.Buf.At(prologueIdx[2])
	decSP.SetImm10(-(d * RegisterSize))
	cm.Buf.Patch(prologueIdx[2], decSP)

	incSP := cm.Buf.At(epilogueIdx[0])
	incSP.SetImm10(d * RegisterSize / 4)
	cm.Buf.Patch(epilogueIdx[0], incSP)
}

// resolveBranchFixups implements spec.md §4.3 step 9: every pending branch
// is patched with the signed instruction-unit displacement to its target's
// recorded offset.
func resolveBranchFixups(cm *CompiledMethod) error {
	for _, fx := range cm.BranchFixups {
		targetIdx, ok := cm.offsetOf(fx.Target)
		if !ok {
			return &UnresolvedBranchTarget{Method: cm.Name(), SourceOffset: fx.SourceIndex}
		}
		disp := int32(targetIdx - fx.SourceIndex)
		if !instr.FitsImm16(disp) {
			return &BranchOutOfRange{Method: cm.Name(), SourceOffset: fx.SourceIndex, Target: targetIdx, Displacement: int(disp)}
		}
		branchInstr := cm.Buf.At(fx.SourceIndex)
		branchInstr.SetImm16(disp)
		cm.Buf.Patch(fx.SourceIndex, branchInstr)
	}
	return nil
}
