package linker

import (
	"testing"

	"spejit/instr"
)

// TestBootloaderSelfModifyRestoresOriginalEncoding checks the structural
// shape of spec.md §8's "idempotent bootloader" law directly against the
// emitted instructions: the loop-load instruction's pristine encoding must
// reappear as the literal the post-loop restore sequence writes back, so a
// second bootloader entry sees the same code a first entry did.
func TestBootloaderSelfModifyRestoresOriginalEncoding(t *testing.T) {
	code, brslIndex := bootloaderImage()

	loopLoadIdx := -1
	for idx, ins := range code {
		// instr.LoadQuadwordDisplaced(instr.RegArg0, argVecReg, 0) is the
		// only emitted instruction targeting RegArg0.
		if ins.RT() == instr.RegArg0 {
			loopLoadIdx = idx
			break
		}
	}
	assert(t, loopLoadIdx >= 0, "expected to find the loop-load instruction targeting RegArg0")
	pristine := int32(code[loopLoadIdx].Word())

	// The restore sequence materializes the pristine word as a 32-bit
	// immediate into restoreWordReg via LoadImmediate32 (one IL, or an
	// ILHU+IOHL pair) between the loop and the final brsl.
	reconstructed, ok := reconstructImmediate32(code[loopLoadIdx+1:brslIndex], instr.Reg(restoreWordReg))
	assert(t, ok, "expected a restore-word load into restoreWordReg before the brsl")
	assert(t, reconstructed == pristine, "restore literal %d does not match pristine loop-load encoding %d", reconstructed, pristine)
}

// reconstructImmediate32 finds instructions targeting rt that materialize a
// 32-bit immediate per instr.LoadImmediate32's two shapes (one IL, or an
// ILHU+IOHL pair) and returns the reconstructed value.
func reconstructImmediate32(code []instr.Instruction, rt instr.Reg) (int32, bool) {
	for i, ins := range code {
		if ins.RT() != rt {
			continue
		}
		switch mnemonic := ins.Disassemble(); {
		case len(mnemonic) >= 2 && mnemonic[:2] == "il" && (len(mnemonic) < 4 || mnemonic[:4] != "ilhu"):
			return ins.Imm16(), true
		case len(mnemonic) >= 4 && mnemonic[:4] == "ilhu":
			if i+1 < len(code) && code[i+1].RT() == rt {
				hi := ins.Imm16()
				lo := code[i+1].Imm16()
				return (hi << 16) | (lo & 0xFFFF), true
			}
		}
	}
	return 0, false
}

// TestBootloaderEndsWithBranchAndSetLink checks the final emitted
// instruction is the entry call, i.e. restoration always precedes it.
func TestBootloaderEndsWithBranchAndSetLink(t *testing.T) {
	code, brslIndex := bootloaderImage()
	assert(t, brslIndex == len(code)-1, "brsl should be the last emitted bootloader instruction")
	assert(t, code[brslIndex].RT() == instr.RegLR, "brsl should target the link register")
}

// TestBootloaderHeaderReadUsesSingleQuadword checks the header is read as
// exactly one quadword at displacement 0 (the whole 16-byte reserved
// region), with count and pointer pulled out as word lanes rather than
// fetched via separate out-of-range quadword loads.
func TestBootloaderHeaderReadUsesSingleQuadword(t *testing.T) {
	code, _ := bootloaderImage()
	lqdAtZero := 0
	for _, ins := range code[:8] {
		if mnemonic := ins.Disassemble(); len(mnemonic) >= 3 && mnemonic[:3] == "lqd" && ins.Imm10() == 0 {
			lqdAtZero++
		}
	}
	assert(t, lqdAtZero == 1, "expected exactly one displacement-0 header load in the prologue, got %d", lqdAtZero)
}

// TestBootloaderArgAdvanceIsOneRegisterSlot checks the argument-vector
// pointer advances by a full 16-byte register slot per iteration (spec.md
// §6: "each 16-byte argument value"), not by a single byte.
func TestBootloaderArgAdvanceIsOneRegisterSlot(t *testing.T) {
	code, _ := bootloaderImage()
	found := false
	for _, ins := range code {
		if mnemonic := ins.Disassemble(); len(mnemonic) >= 2 && mnemonic[:2] == "ai" && ins.RT() == instr.Reg(argVecReg) {
			assert(t, ins.Imm10() == registerSize, "argument pointer advance: got %d want %d", ins.Imm10(), registerSize)
			found = true
		}
	}
	assert(t, found, "expected an ai instruction advancing argVecReg")
}

// TestBootloaderSkipsCopyLoopWhenArgCountZero checks spec.md §6's "if
// argument count is nonzero" precondition is actually gated: the
// zero-check branch taken for a niladic entry must land past the entire
// copy-in loop (its terminating brnz), not fall into the loop body.
func TestBootloaderSkipsCopyLoopWhenArgCountZero(t *testing.T) {
	code, _ := bootloaderImage()

	loopLoadIdx := -1
	for idx, ins := range code {
		if ins.RT() == instr.RegArg0 {
			loopLoadIdx = idx
			break
		}
	}
	assert(t, loopLoadIdx >= 0, "expected to find the loop-load instruction targeting RegArg0")

	zeroCheckIdx := -1
	for idx, ins := range code[:loopLoadIdx] {
		if mnemonic := ins.Disassemble(); len(mnemonic) >= 3 && mnemonic[:3] == "brz" {
			zeroCheckIdx = idx
		}
	}
	assert(t, zeroCheckIdx >= 0, "expected a zero-argument-count check before the copy-in loop")

	loopExitIdx := -1
	for idx, ins := range code[loopLoadIdx:] {
		if mnemonic := ins.Disassemble(); len(mnemonic) >= 4 && mnemonic[:4] == "brnz" {
			loopExitIdx = loopLoadIdx + idx + 1
			break
		}
	}
	assert(t, loopExitIdx >= 0, "expected the loop-terminating brnz instruction")

	target := zeroCheckIdx + int(code[zeroCheckIdx].Imm16())
	assert(t, target == loopExitIdx,
		"zero-count check should branch past the entire copy-in loop: target %d want %d", target, loopExitIdx)
}
