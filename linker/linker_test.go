package linker

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"spejit/codegen"
	"spejit/ir"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func compile(t *testing.T, m *ir.Method) *codegen.CompiledMethod {
	t.Helper()
	cm, err := codegen.CompileMethod(m)
	assert(t, err == nil, "compile %q failed: %v", m.Name, err)
	return cm
}

func TestLinkSingleMethodPatchesEntryBranch(t *testing.T) {
	entry := &ir.Method{Name: "Main", Body: []*ir.Inst{{Op: ir.OpRet}}}
	cm := compile(t, entry)

	img, err := Link([]*codegen.CompiledMethod{cm})
	assert(t, err == nil, "link failed: %v", err)
	assert(t, img.methodBase["Main"] == img.EntryOffset, "entry method should sit at EntryOffset")
	assert(t, img.EntryOffset > img.CallHandlerOffset, "entry must follow the call handler")

	_, brslIndex := bootloaderImage()
	target := brslIndex + int(img.Buf.At(brslIndex).Imm16())
	assert(t, target == img.EntryOffset, "entry branch lands at %d, want EntryOffset %d", target, img.EntryOffset)
}

func TestLinkResolvesCallFixupToCallHandlerAndCalleeID(t *testing.T) {
	callee := &ir.Method{Name: "Callee", Body: []*ir.Inst{{Op: ir.OpRet}}}
	callInst := &ir.Inst{Op: ir.OpCall, Callee: "Callee", NArgs: 0}
	caller := &ir.Method{Name: "Caller", Body: []*ir.Inst{callInst, {Op: ir.OpRet}}}

	calleeCM := compile(t, callee)
	callerCM := compile(t, caller)

	img, err := Link([]*codegen.CompiledMethod{callerCM, calleeCM})
	assert(t, err == nil, "link failed: %v", err)

	fx := callerCM.CallFixups[0]
	callerBase := img.methodBase["Caller"]
	calleeBase := img.methodBase["Callee"]
	siteIdx := callerBase + fx.SourceIndex

	// The call instruction itself always branches to the call handler
	// (spec.md §4.4 step 5), never directly to the callee.
	got := img.Buf.At(siteIdx).Imm16()
	want := int32(img.CallHandlerOffset - siteIdx)
	assert(t, got == want, "call displacement: got %d want %d", got, want)

	// The neighbouring register load carries the callee's resolved identity.
	idLoadIdx := callerBase + fx.IDLoadIndex
	gotID := img.Buf.At(idLoadIdx).Imm16()
	assert(t, gotID == int32(calleeBase), "callee-id payload: got %d want %d", gotID, calleeBase)
}

func TestLinkMissingCalleeFails(t *testing.T) {
	callInst := &ir.Inst{Op: ir.OpCall, Callee: "Ghost", NArgs: 0}
	caller := &ir.Method{Name: "Caller", Body: []*ir.Inst{callInst, {Op: ir.OpRet}}}
	callerCM := compile(t, caller)

	img, err := Link([]*codegen.CompiledMethod{callerCM})
	assert(t, img == nil, "expected no image on failure")
	var mc *codegen.MissingCallee
	assert(t, errors.As(err, &mc), "expected MissingCallee, got %v", err)
}

func TestDisassembleEmitsFunctionEntryMarkers(t *testing.T) {
	entry := &ir.Method{Name: "Main", Body: []*ir.Inst{{Op: ir.OpRet}}}
	second := &ir.Method{Name: "Second", Body: []*ir.Inst{{Op: ir.OpRet}}}
	img, err := Link([]*codegen.CompiledMethod{compile(t, entry), compile(t, second)})
	assert(t, err == nil, "link failed: %v", err)

	var buf bytes.Buffer
	assert(t, img.Disassemble(&buf) == nil, "disassemble failed")
	text := buf.String()
	assert(t, strings.Contains(text, "# Function entry: Main"), "missing Main marker:\n%s", text)
	assert(t, strings.Contains(text, "# Function entry: Second"), "missing Second marker:\n%s", text)
}

func TestSerializeProducesFourBytesPerInstruction(t *testing.T) {
	entry := &ir.Method{Name: "Main", Body: []*ir.Inst{{Op: ir.OpRet}}}
	img, err := Link([]*codegen.CompiledMethod{compile(t, entry)})
	assert(t, err == nil, "link failed: %v", err)

	var buf bytes.Buffer
	assert(t, img.Serialize(&buf) == nil, "serialize failed")
	assert(t, buf.Len() == img.Buf.Len()*4, "want %d bytes, got %d", img.Buf.Len()*4, buf.Len())
}
