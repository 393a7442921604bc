package linker

import (
	"spejit/instr"
)

// initialSP is the ABI's starting stack-pointer value: top of the 256 KB
// local store minus one register slot (spec.md §6).
const initialSP = 0x40000 - 16

// registerSize is the frame/argument slot width in bytes (spec.md §6: "each
// 16-byte argument value"), matching codegen.RegisterSize.
const registerSize = 16

// Word-lane indices within the single reserved quadword occupying the first
// 16 bytes of the image (spec.md §6).
const (
	reservedTrapSlot  = 0 // null-pointer canary
	reservedCountSlot = 1 // argument count word
	reservedPtrSlot   = 2 // pointer to argument vector
	reservedPadSlot   = 3
)

// Bootloader-private registers; the bootloader runs before any managed
// method, so it owns the whole register file and picks freely from the
// volatile/scratch window like any other short-lived code.
const (
	argVecReg      = instr.RegScratch0     // byte address of the next argument to copy
	argCountReg    = instr.RegScratch0 + 1 // remaining argument count
	zeroReg        = instr.RegScratch0 + 2 // holds 0: the local-store base for code/header loads
	codeQuadReg    = instr.RegScratch0 + 3 // the quadword of code currently being self-patched
	curWordReg     = instr.RegScratch0 + 4 // the loop-load instruction's word, extracted for patching
	restoreWordReg = instr.RegVolLast      // holds the pristine loop-load encoding for post-loop restore
)

// bootloaderImage builds the fixed bootloader sequence (spec.md §6): it
// initializes SP, consumes the reserved argument descriptor, self-modifies a
// load instruction to copy each argument into _ARG0+i, restores that
// instruction so a re-entry sees the original code, and finally
// branch-and-links to the entry method. It returns the instructions and the
// index, within the returned slice, of the final branch-and-link whose
// displacement the linker patches once the entry method's offset is known.
func bootloaderImage() (code []instr.Instruction, brslIndex int) {
	var b []instr.Instruction
	emit := func(i instr.Instruction) int {
		b = append(b, i)
		return len(b) - 1
	}

	// Reserved header: one quadword (4 instruction-sized words), populated
	// by the host before execution; zeroed here since this is build-time
	// output (spec.md §6 "Bootloader reserved layout").
	emit(instr.Stop())           // reservedTrapSlot: trap if ever executed directly
	emit(instr.NewRI16(0, 0, 0)) // reservedCountSlot
	emit(instr.NewRI16(0, 0, 0)) // reservedPtrSlot
	emit(instr.NewRI16(0, 0, 0)) // reservedPadSlot

	// SP init.
	for _, i := range instr.LoadImmediate32(instr.RegSP, int32(initialSP)) {
		emit(i)
	}

	// The reserved header is one 16-byte quadword at local-store address 0;
	// count and pointer are its word lanes 1 and 2.
	emit(instr.ClearRegister(zeroReg))
	emit(instr.LoadQuadwordDisplaced(codeQuadReg, zeroReg, 0))
	emit(instr.ExtractWord(argCountReg, codeQuadReg, int32(reservedCountSlot)))
	emit(instr.ExtractWord(argVecReg, codeQuadReg, int32(reservedPtrSlot)))

	// spec.md §6: "if argument count is nonzero" — skip the copy-in loop
	// entirely for a niladic entry, rather than dereferencing argVecReg and
	// running one spurious self-modifying iteration before the decrement
	// wraps argCountReg back down to 0. Patched below once the loop's exit
	// point is known.
	zeroCheckIdx := emit(instr.BranchIfZero(argCountReg, 0))

	// Self-modifying copy-in loop: the load's own target-register field is
	// incremented each iteration so successive 16-byte arguments land in
	// _ARG0, _ARG0+1, ... The load instruction's buffer index is fixed by
	// construction (loopLoadIdx below); the bootloader always sits at image
	// offset 0 (spec.md §4.4 step 1), so that index is also the
	// instruction's final byte offset / 4, known entirely at build time.
	loopTop := len(b)
	loopLoadIdx := emit(instr.LoadQuadwordDisplaced(instr.RegArg0, argVecReg, 0))
	pristineLoopLoad := b[loopLoadIdx]
	emit(instr.AddImm(argVecReg, argVecReg, registerSize))

	quadIdx := int32(loopLoadIdx / 4)
	wordIdx := int32(loopLoadIdx % 4)

	// Read the quadword of code containing the loop-load instruction,
	// extract its word, bump the RT field (the word's low 7 bits, so a
	// plain +1 advances it without touching any other field), reinsert, and
	// write the quadword back before the next iteration fetches it.
	emit(instr.LoadQuadwordDisplaced(codeQuadReg, zeroReg, quadIdx))
	emit(instr.ExtractWord(curWordReg, codeQuadReg, wordIdx))
	emit(instr.AddImm(curWordReg, curWordReg, 1))
	emit(instr.InsertWord(codeQuadReg, codeQuadReg, curWordReg, wordIdx))
	emit(instr.StoreQuadwordDisplaced(codeQuadReg, zeroReg, quadIdx))

	emit(instr.AddImm(argCountReg, argCountReg, -1))
	branchIdx := len(b)
	emit(instr.BranchIfNotZero(argCountReg, int32(loopTop-branchIdx)))

	// The zero-argument entry skips straight here, past the loop entirely.
	loopExit := len(b)
	zc := b[zeroCheckIdx]
	zc.SetImm16(int32(loopExit - zeroCheckIdx))
	b[zeroCheckIdx] = zc

	// Re-entry requires the self-modified load to be restored to its
	// pristine encoding before any control-flow exit (spec.md §8's
	// "idempotent bootloader" law): reload the quadword, reinsert the known
	// build-time-constant original word, and store it back.
	for _, i := range instr.LoadImmediate32(restoreWordReg, int32(pristineLoopLoad.Word())) {
		emit(i)
	}
	emit(instr.LoadQuadwordDisplaced(codeQuadReg, zeroReg, quadIdx))
	emit(instr.InsertWord(codeQuadReg, codeQuadReg, restoreWordReg, wordIdx))
	emit(instr.StoreQuadwordDisplaced(codeQuadReg, zeroReg, quadIdx))

	brslIndex = len(b)
	emit(instr.BranchAndSetLink(0)) // displacement patched by the linker

	return b, brslIndex
}

// callHandlerImage is the call-handler trampoline (spec.md §4.4 step 2):
// in this design it is a single stop instruction, reserved for a future
// PPE-assisted dispatch through a method table.
func callHandlerImage() []instr.Instruction {
	return []instr.Instruction{instr.Stop()}
}
