// Package elfimage packages a linked SPE instruction stream as a minimal
// ELF64 object, grounded on the teacher's buildELF64 layout (single PT_LOAD
// segment, .text + .symtab + .strtab + .shstrtab, trimmed of the
// data/rodata sections and architecture-specific relocation handling that
// have no SPE equivalent here).
package elfimage

import (
	"bytes"

	"spejit/linker"
)

// BootloaderStartOffset is BOOTLOADER_START_OFFSET (spec.md §6): the byte
// offset, within the image, of the first executed bootloader instruction —
// the reserved 16-byte argument-descriptor header precedes it.
const BootloaderStartOffset = 16

const emSPU = 23 // ELF machine value for the Cell SPU, spec.md §6

type symEntry struct {
	nameOff uint32
	value   uint64
	size    uint64
}

// Build packages img as an ELF64 object. e_entry points at
// BootloaderStartOffset; a symbol table records the bootloader, the call
// handler, and every linked method at its base offset, matching the
// teacher's one-symbol-per-function convention.
func Build(img *linker.Image) ([]byte, error) {
	var text bytes.Buffer
	if err := img.Serialize(&text); err != nil {
		return nil, err
	}
	code := text.Bytes()

	const elfHeaderSize = 64
	const phdrSize = 56
	headerTotal := elfHeaderSize + phdrSize
	textOffset := (headerTotal + 15) &^ 15
	textSize := len(code)

	loadedSize := textOffset + textSize
	// The PT_LOAD segment maps the text alone at local-store address 0, where
	// the bootloader reads its reserved header and patches its own code.
	const baseAddr = 0
	textVAddr := uint64(baseAddr)

	var strtab []byte
	strtab = append(strtab, 0)

	addSym := func(name string, value uint64, size uint64) symEntry {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, []byte(name)...)
		strtab = append(strtab, 0)
		return symEntry{nameOff, value, size}
	}

	var syms []symEntry
	syms = append(syms, addSym("_bootloader", textVAddr, uint64(img.CallHandlerOffset)*4))
	syms = append(syms, addSym("_callhandler", textVAddr+uint64(img.CallHandlerOffset)*4, uint64(img.EntryOffset-img.CallHandlerOffset)*4))
	for _, name := range img.MethodOrder() {
		base := img.MethodBase(name)
		syms = append(syms, addSym(name, textVAddr+uint64(base)*4, methodSize(img, name)))
	}

	symEntrySize := 24
	symtabSize := (1 + len(syms)) * symEntrySize
	symtab := make([]byte, symtabSize)
	for i, sym := range syms {
		off := (i + 1) * symEntrySize
		putU32(symtab[off:], sym.nameOff)
		symtab[off+4] = 0x12 // STT_FUNC | STB_GLOBAL<<4
		putU16(symtab[off+6:], 1)
		putU64(symtab[off+8:], sym.value)
		putU64(symtab[off+16:], sym.size)
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	const (
		shNameText     = 1
		shNameSymtab   = 7
		shNameStrtab   = 15
		shNameShstrtab = 23
	)

	symtabOffset := loadedSize
	strtabOffset := symtabOffset + symtabSize
	shstrtabOffset := strtabOffset + len(strtab)
	shdrOffset := shstrtabOffset + len(shstrtab)

	const shdrEntrySize = 64
	const shdrCount = 5
	totalSize := shdrOffset + shdrCount*shdrEntrySize

	elf := make([]byte, totalSize)

	elf[0], elf[1], elf[2], elf[3] = 0x7f, 'E', 'L', 'F'
	elf[4] = 2 // ELFCLASS64
	elf[5] = 1 // ELFDATA2LSB (header fields are little-endian; .text itself is big-endian SPE words)
	elf[6] = 1 // EV_CURRENT
	putU16(elf[16:], 2)                                // e_type: ET_EXEC
	putU16(elf[18:], emSPU)                            // e_machine
	putU32(elf[20:], 1)                                // e_version
	putU64(elf[24:], textVAddr+BootloaderStartOffset)  // e_entry
	putU64(elf[32:], uint64(elfHeaderSize))            // e_phoff
	putU64(elf[40:], uint64(shdrOffset))               // e_shoff
	putU16(elf[52:], uint16(elfHeaderSize))            // e_ehsize
	putU16(elf[54:], uint16(phdrSize))                 // e_phentsize
	putU16(elf[56:], 1)                                // e_phnum
	putU16(elf[58:], uint16(shdrEntrySize))            // e_shentsize
	putU16(elf[60:], uint16(shdrCount))                // e_shnum
	putU16(elf[62:], 4)                                // e_shstrndx

	phdr := elf[elfHeaderSize:]
	putU32(phdr[0:], 1) // PT_LOAD
	putU32(phdr[4:], 7) // PF_R|PF_W|PF_X
	putU64(phdr[8:], uint64(textOffset))
	putU64(phdr[16:], uint64(baseAddr))
	putU64(phdr[24:], uint64(baseAddr))
	putU64(phdr[32:], uint64(textSize))
	putU64(phdr[40:], uint64(textSize))
	putU64(phdr[48:], 16)

	copy(elf[textOffset:], code)
	copy(elf[symtabOffset:], symtab)
	copy(elf[strtabOffset:], strtab)
	copy(elf[shstrtabOffset:], shstrtab)

	shdr := elf[shdrOffset:]
	writeShdr(shdr[1*shdrEntrySize:], shNameText, 1, 6, textVAddr, uint64(textOffset), uint64(textSize), 16, 0)
	writeShdr(shdr[2*shdrEntrySize:], shNameSymtab, 2, 0, 0, uint64(symtabOffset), uint64(symtabSize), 8, uint64(symEntrySize))
	shdr2 := shdr[2*shdrEntrySize:]
	putU32(shdr2[40:], 3) // sh_link: .strtab section index
	putU32(shdr2[44:], 1) // sh_info: first global symbol

	writeShdr(shdr[3*shdrEntrySize:], shNameStrtab, 3, 0, 0, uint64(strtabOffset), uint64(len(strtab)), 1, 0)
	writeShdr(shdr[4*shdrEntrySize:], shNameShstrtab, 3, 0, 0, uint64(shstrtabOffset), uint64(len(shstrtab)), 1, 0)

	return elf, nil
}

func writeShdr(s []byte, name uint32, typ uint32, flags, addr, offset, size, align, entsize uint64) {
	putU32(s[0:], name)
	putU32(s[4:], typ)
	putU64(s[8:], flags)
	putU64(s[16:], addr)
	putU64(s[24:], offset)
	putU64(s[32:], size)
	putU64(s[48:], align)
	putU64(s[56:], entsize)
}

func methodSize(img *linker.Image, name string) uint64 {
	order := img.MethodOrder()
	base := img.MethodBase(name)
	next := img.Buf.Len()
	for _, other := range order {
		ob := img.MethodBase(other)
		if ob > base && ob < next {
			next = ob
		}
	}
	return uint64(next-base) * 4
}

func putU64(b []byte, v uint64) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	b[4], b[5], b[6], b[7] = byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56)
}

func putU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putU16(b []byte, v uint16) {
	b[0], b[1] = byte(v), byte(v>>8)
}
