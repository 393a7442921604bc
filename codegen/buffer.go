package codegen

import (
	"io"

	"spejit/instr"
)

// Buffer is an append-only ordered sequence of encoded SPE instructions
// with byte addresses implied by position (spec.md §4.1). A Buffer belongs
// exclusively to one CompiledMethod, or to the linker's final image.
type Buffer struct {
	instrs []instr.Instruction
}

// Append adds i to the end of the buffer and returns its index.
func (b *Buffer) Append(i instr.Instruction) int {
	b.instrs = append(b.instrs, i)
	return len(b.instrs) - 1
}

// Len reports the number of instructions currently in the buffer.
func (b *Buffer) Len() int { return len(b.instrs) }

// At returns the instruction at index idx.
func (b *Buffer) At(idx int) instr.Instruction { return b.instrs[idx] }

// Patch replaces the instruction at index idx with i, used for late
// immediate-field rewrites (prologue/epilogue sizing, branch fixups).
func (b *Buffer) Patch(idx int, i instr.Instruction) { b.instrs[idx] = i }

// All returns the buffer's instructions in order. Callers must not mutate
// the returned slice in place; use Patch instead.
func (b *Buffer) All() []instr.Instruction { return b.instrs }

// Serialize writes every instruction as four big-endian bytes, regardless
// of host byte order, to out.
func (b *Buffer) Serialize(out io.Writer) error {
	for _, i := range b.instrs {
		bs := i.Bytes()
		if _, err := out.Write(bs[:]); err != nil {
			return &StreamWriteFailure{Err: err}
		}
	}
	return nil
}
