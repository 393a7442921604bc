package elfimage

import (
	"testing"

	"spejit/codegen"
	"spejit/ir"
	"spejit/linker"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestBuildProducesValidELFHeader(t *testing.T) {
	src := &ir.Method{Name: "Main", Body: []*ir.Inst{{Op: ir.OpRet}}}
	cm, err := codegen.CompileMethod(src)
	assert(t, err == nil, "compile failed: %v", err)

	img, err := linker.Link([]*codegen.CompiledMethod{cm})
	assert(t, err == nil, "link failed: %v", err)

	elf, err := Build(img)
	assert(t, err == nil, "build failed: %v", err)

	assert(t, len(elf) > 64, "elf output too short: %d bytes", len(elf))
	assert(t, elf[0] == 0x7f && elf[1] == 'E' && elf[2] == 'L' && elf[3] == 'F', "missing ELF magic")
	assert(t, elf[4] == 2, "want ELFCLASS64, got %d", elf[4])

	gotEntry := uint64(0)
	for i := 0; i < 8; i++ {
		gotEntry |= uint64(elf[24+i]) << (8 * i)
	}
	assert(t, gotEntry == BootloaderStartOffset, "e_entry: got %d want %d", gotEntry, BootloaderStartOffset)
}
