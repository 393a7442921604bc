package codegen

import "spejit/instr"

// Register-window constants (spec.md §3, §4.3).
const (
	// MaxLVRegisters is MAX_LV_REGISTERS: the number of callee-saved
	// registers available for locals, arguments, and the virtual operand
	// stack combined. The physical window is 80..127 (48 registers); one is
	// held back so the compiler never pins every preserved register to a
	// permanent slot, matching spec.md's stated limit of 47.
	MaxLVRegisters = 47

	// RegisterSize is the frame slot width in bytes; all stack motion is in
	// 16-byte units.
	RegisterSize = 16
)

// lv0 is the first permanent (locals+args+stack) register.
const lv0 = instr.RegPreserved

// arg0 is the first incoming-argument register, per the ABI.
const arg0 = instr.RegArg0

// scratch registers _TMP0.._TMP4, never carry values across opcode
// translations (spec.md §3 register allocation invariants).
var scratch = [5]instr.Reg{instr.RegScratch0, instr.RegScratch0 + 1, instr.RegScratch0 + 2, instr.RegScratch0 + 3, instr.RegScratch0 + 4}
