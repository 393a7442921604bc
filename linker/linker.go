// Package linker assembles compiled methods into one relocatable SPE image
// (spec.md §4.4): it prepends the bootloader and call-handler trampoline,
// lays out each method at a fixed base offset, resolves inter-method call
// fixups, and serializes the result as big-endian instruction words.
package linker

import (
	"fmt"
	"io"

	"spejit/codegen"
	"spejit/instr"
)

// Image is the linked, relocated output ready for serialization or ELF
// packaging.
type Image struct {
	Buf codegen.Buffer

	// EntryOffset is the instruction index of the first input method, the
	// JIT's entry point (spec.md §4.4 step 4).
	EntryOffset int

	// CallHandlerOffset is the instruction index of the reserved call
	// trampoline (spec.md §4.4 step 2).
	CallHandlerOffset int

	// methodBase records each method's base offset, in input order, for the
	// disassembly sink's "# Function entry" markers.
	methodOrder []string
	methodBase  map[string]int
}

// Link assembles methods, in the given order, into one Image. The first
// method is the entry point. Link fails with *codegen.MissingCallee if any
// method's call fixup names a callee absent from methods.
func Link(methods []*codegen.CompiledMethod) (*Image, error) {
	if len(methods) == 0 {
		return nil, fmt.Errorf("linker: no methods to link")
	}

	img := &Image{methodBase: make(map[string]int)}

	bootCode, brslIndex := bootloaderImage()
	for _, i := range bootCode {
		img.Buf.Append(i)
	}

	img.CallHandlerOffset = img.Buf.Len()
	for _, i := range callHandlerImage() {
		img.Buf.Append(i)
	}

	img.EntryOffset = img.Buf.Len()

	// spec.md §4.4 step 3: patch the bootloader's branch-and-set-link so it
	// reaches the entry function. Like every branch in this module, the
	// displacement counts instructions from the branch itself: the call
	// handler's length plus one, since the brsl is the bootloader's last
	// instruction.
	disp := int32(img.EntryOffset - brslIndex)
	if !instr.FitsImm16(disp) {
		return nil, fmt.Errorf("linker: entry displacement %d out of range", disp)
	}
	brsl := img.Buf.At(brslIndex)
	brsl.SetImm16(disp)
	img.Buf.Patch(brslIndex, brsl)

	for _, m := range methods {
		base := img.Buf.Len()
		img.methodOrder = append(img.methodOrder, m.Name())
		img.methodBase[m.Name()] = base
		for _, i := range m.Buf.All() {
			img.Buf.Append(i)
		}
	}

	if err := resolveCallFixups(img, methods); err != nil {
		return nil, err
	}

	return img, nil
}

// resolveCallFixups implements spec.md §4.4 step 5: each pending call
// instruction is patched with the signed instruction-unit displacement from
// the call site to callhandlerOffset, and the neighbouring register load
// emitted alongside it is patched with the callee's resolved base offset,
// the "callee identity" payload a PPE-assisted call handler would resolve
// to an address.
func resolveCallFixups(img *Image, methods []*codegen.CompiledMethod) error {
	for _, m := range methods {
		base := img.methodBase[m.Name()]
		for _, fx := range m.CallFixups {
			calleeBase, ok := img.methodBase[fx.Callee]
			if !ok {
				return &codegen.MissingCallee{Caller: m.Name(), Callee: fx.Callee}
			}

			siteIdx := base + fx.SourceIndex
			disp := int32(img.CallHandlerOffset - siteIdx)
			if !instr.FitsImm16(disp) {
				return &codegen.BranchOutOfRange{
					Method:       m.Name(),
					SourceOffset: fx.SourceIndex,
					Target:       img.CallHandlerOffset,
					Displacement: int(disp),
				}
			}
			call := img.Buf.At(siteIdx)
			call.SetImm16(disp)
			img.Buf.Patch(siteIdx, call)

			idLoadIdx := base + fx.IDLoadIndex
			if !instr.FitsImm16(int32(calleeBase)) {
				return &codegen.BranchOutOfRange{
					Method:       m.Name(),
					SourceOffset: fx.IDLoadIndex,
					Target:       calleeBase,
					Displacement: calleeBase,
				}
			}
			idLoad := img.Buf.At(idLoadIdx)
			idLoad.SetImm16(int32(calleeBase))
			img.Buf.Patch(idLoadIdx, idLoad)
		}
	}
	return nil
}

// MethodOrder returns the linked methods' names in input order.
func (img *Image) MethodOrder() []string { return img.methodOrder }

// MethodBase returns the instruction index at which name's code begins. It
// panics if name was not part of the link, matching the other accessors'
// assumption that callers only ask about methods they just linked.
func (img *Image) MethodBase(name string) int {
	base, ok := img.methodBase[name]
	if !ok {
		panic("linker: unknown method " + name)
	}
	return base
}

// Serialize writes the image as big-endian instruction words.
func (img *Image) Serialize(out io.Writer) error {
	return img.Buf.Serialize(out)
}

// Disassemble writes a textual listing of the image to out, one instruction
// per line, with a "# Function entry" marker preceding each method's first
// instruction (spec.md §4.4's optional disassembly sink).
func (img *Image) Disassemble(out io.Writer) error {
	markers := make(map[int]string, len(img.methodOrder))
	for _, name := range img.methodOrder {
		markers[img.methodBase[name]] = name
	}

	for idx, i := range img.Buf.All() {
		if name, ok := markers[idx]; ok {
			if _, err := fmt.Fprintf(out, "# Function entry: %s\n", name); err != nil {
				return &codegen.TextSerializationFailure{Err: err}
			}
		}
		if _, err := fmt.Fprintf(out, "%6d: %s\n", idx, i.Disassemble()); err != nil {
			return &codegen.TextSerializationFailure{Err: err}
		}
	}
	return nil
}
