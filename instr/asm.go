package instr

import "fmt"

// Semantic constructors. These are the only entry points the rest of the
// JIT uses to build instructions; the raw NewXX constructors in instr.go exist so
// this file and the disassembler share one encoding.

func Stop() Instruction                       { return NewRI16(opStop, 0, 0) }
func Move(rt, ra Reg) Instruction              { return NewRR(opLR, rt, ra, 0) }
func Add(rt, ra, rb Reg) Instruction           { return NewRR(opA, rt, ra, rb) }
func AddImm(rt, ra Reg, imm10 int32) Instruction { return NewRI10(opAI, rt, ra, imm10) }
func Sub(rt, ra, rb Reg) Instruction           { return NewRR(opSF, rt, rb, ra) } // rt = ra - rb
func SubFromImm(rt, ra Reg, imm10 int32) Instruction { return NewRI10(opSFI, rt, ra, imm10) }
func MulLow(rt, ra, rb Reg) Instruction        { return NewRR(opMPY, rt, ra, rb) }
func MulUnsigned(rt, ra, rb Reg) Instruction   { return NewRR(opMPYU, rt, ra, rb) }
func MulHigh(rt, ra, rb Reg) Instruction       { return NewRR(opMPYH, rt, ra, rb) }
func And(rt, ra, rb Reg) Instruction           { return NewRR(opAND, rt, ra, rb) }
func Or(rt, ra, rb Reg) Instruction            { return NewRR(opOR, rt, ra, rb) }
func Xor(rt, ra, rb Reg) Instruction           { return NewRR(opXOR, rt, ra, rb) }
func RotateLeft(rt, ra Reg, bits int32) Instruction { return NewRI10(opROTHI, rt, ra, bits) }

// ExtractLane pulls 16-bit lane `lane` (0 = most significant) out of ra into
// rt, zero-extended. Used by the 64-bit multiply expansion (spec.md §4.2)
// to split each 64-bit operand into four 16-bit partial-product inputs.
func ExtractLane(rt, ra Reg, lane int32) Instruction { return NewRI10(opEXTH, rt, ra, lane) }

// ShiftLeft shifts ra left by the given bit count, zero-filling, into rt.
func ShiftLeft(rt, ra Reg, bits int32) Instruction { return NewRI10(opSHLI, rt, ra, bits) }

// ExtractWord pulls 32-bit word lane `wordIdx` (0 = most significant) out of
// the quadword held in ra into rt, the word-granular sibling of ExtractLane.
// Used by the bootloader's self-modifying argument-copy loop (spec.md §6) to
// read one packed instruction out of the quadword a code-memory load fetches.
func ExtractWord(rt, ra Reg, wordIdx int32) Instruction { return NewRI10(opEXTW, rt, ra, wordIdx) }

var insertWordOps = [4]uint32{opINSW0, opINSW1, opINSW2, opINSW3}

// InsertWord returns ra with word lane wordIdx (0..3) replaced by rb, the
// other three lanes passed through unchanged. The inverse of ExtractWord,
// used to patch one packed instruction back into a quadword before storing
// it to code memory.
func InsertWord(rt, ra, rb Reg, wordIdx int32) Instruction {
	return NewRR(insertWordOps[wordIdx], rt, ra, rb)
}

// LoadImmediate loads a sign-extended 16-bit immediate (IL) into rt.
func LoadImmediate(rt Reg, imm16 int32) Instruction { return NewRI16(opIL, rt, imm16) }

// LoadUpperImmediate loads imm16 into the upper half of rt (ILHU).
func LoadUpperImmediate(rt Reg, imm16 int32) Instruction { return NewRI16(opILHU, rt, imm16) }

// OrLowerImmediate ORs imm16 into the lower half of rt (IOHL).
func OrLowerImmediate(rt Reg, imm16 int32) Instruction { return NewRI16(opIOHL, rt, imm16) }

// LoadImmediate32 materializes a full 32-bit immediate into rt: a single IL
// when it fits 16 bits signed, otherwise ILHU+IOHL for the high/low halves.
func LoadImmediate32(rt Reg, v int32) []Instruction {
	if FitsImm16(v) {
		return []Instruction{LoadImmediate(rt, v)}
	}
	hi := int32(int16(uint32(v) >> 16))
	lo := int32(int16(uint32(v)))
	return []Instruction{LoadUpperImmediate(rt, hi), OrLowerImmediate(rt, lo)}
}

// ClearRegister zero-fills rt; used for local-variable zero-init.
func ClearRegister(rt Reg) Instruction { return LoadImmediate(rt, 0) }

// LoadQuadwordDisplaced loads the quadword at [ra + disp*16] into rt.
func LoadQuadwordDisplaced(rt, ra Reg, disp int32) Instruction {
	return NewRI10(opLQD, rt, ra, disp)
}

// StoreQuadwordDisplaced stores rt to [ra + disp*16].
func StoreQuadwordDisplaced(rt, ra Reg, disp int32) Instruction {
	return NewRI10(opSTQD, rt, ra, disp)
}

// Branch is an unconditional relative branch; imm16 is patched later.
func Branch(imm16 int32) Instruction { return NewRI16(opBR, 0, imm16) }

// BranchIfZero branches if rt == 0.
func BranchIfZero(rt Reg, imm16 int32) Instruction { return NewRI16(opBRZ, rt, imm16) }

// BranchIfNotZero branches if rt != 0.
func BranchIfNotZero(rt Reg, imm16 int32) Instruction { return NewRI16(opBRNZ, rt, imm16) }

// BranchAndSetLink is a relative call: sets LR, branches by imm16.
func BranchAndSetLink(imm16 int32) Instruction { return NewRI16(opBRSL, Reg(RegLR), imm16) }

// BranchIndirect branches to the address held in ra (used for `ret`).
func BranchIndirect(ra Reg) Instruction { return NewRR(opBI, 0, ra, 0) }

// mnemonics maps an opcode to its textual name for disassembly.
var mnemonics = map[uint32]string{
	opStop: "stop", opLR: "lr", opIL: "il", opILA: "ila", opILHU: "ilhu", opIOHL: "iohl",
	opA: "a", opAI: "ai", opSF: "sf", opSFI: "sfi",
	opMPY: "mpy", opMPYU: "mpyu", opMPYH: "mpyh",
	opAND: "and", opOR: "or", opXOR: "xor", opROTHI: "roti",
	opLQD: "lqd", opSTQD: "stqd",
	opBR: "br", opBRSL: "brsl", opBRZ: "brz", opBRNZ: "brnz", opBI: "bi", opBISL: "bisl",
	opEXTH: "exth", opSHLI: "shli", opEXTW: "extw",
	opINSW0: "insw0", opINSW1: "insw1", opINSW2: "insw2", opINSW3: "insw3",
}

// familyOf classifies an opcode into the instruction format its operand
// fields use, for disassembly only.
func familyOf(word uint32) (op uint32, family string) {
	if o := (word >> opRRShift) & opRRMask; mnemonics[o] != "" && isRRFamily(o) {
		return o, "rr"
	}
	if o := (word >> opRI10Shift) & opRI10Mask; mnemonics[o] != "" && isRI10Family(o) {
		return o, "ri10"
	}
	if o := (word >> opRI16Shift) & opRI16Mask; mnemonics[o] != "" && isRI16Family(o) {
		return o, "ri16"
	}
	if o := (word >> opRI18Shift) & opRI18Mask; mnemonics[o] != "" && isRI18Family(o) {
		return o, "ri18"
	}
	return 0, "unknown"
}

func isRRFamily(o uint32) bool {
	switch o {
	case opLR, opA, opSF, opMPY, opMPYU, opMPYH, opAND, opOR, opXOR, opBI, opBISL,
		opINSW0, opINSW1, opINSW2, opINSW3:
		return true
	}
	return false
}

func isRI10Family(o uint32) bool {
	switch o {
	case opAI, opSFI, opROTHI, opLQD, opSTQD, opEXTH, opSHLI, opEXTW:
		return true
	}
	return false
}

func isRI16Family(o uint32) bool {
	switch o {
	case opStop, opIL, opILHU, opIOHL, opBR, opBRSL, opBRZ, opBRNZ:
		return true
	}
	return false
}

func isRI18Family(o uint32) bool {
	return o == opILA
}

// Disassemble renders one instruction as a mnemonic text line.
func (i Instruction) Disassemble() string {
	op, family := familyOf(i.word)
	name := mnemonics[op]
	if name == "" {
		return fmt.Sprintf(".word 0x%08x", i.word)
	}
	rt := (i.word >> rtShift) & rtMask
	switch family {
	case "rr":
		ra := (i.word >> raShift) & raMask
		rb := (i.word >> rbShift) & rbMask
		return fmt.Sprintf("%-6s $%d,$%d,$%d", name, rt, ra, rb)
	case "ri10":
		ra := (i.word >> raShift) & raMask
		return fmt.Sprintf("%-6s $%d,$%d,%d", name, rt, ra, i.Imm10())
	case "ri16":
		return fmt.Sprintf("%-6s $%d,%d", name, rt, i.Imm16())
	case "ri18":
		return fmt.Sprintf("%-6s $%d,%d", name, rt, (i.word>>i18Shift)&i18Mask)
	default:
		return fmt.Sprintf(".word 0x%08x", i.word)
	}
}
