package codegen

import "spejit/ir"

// BranchFixup is a pending intra-method branch: the index of the already
// emitted branch instruction and the IR node it must eventually target.
type BranchFixup struct {
	SourceIndex int
	Target      *ir.Inst
}

// CallFixup is a pending inter-method call: the index of the call
// instruction (which the linker patches to branch to the call handler), the
// index of the neighbouring register load that carries the callee's
// identity payload, and the callee method's name, resolved later by the
// linker (spec.md §4.4 step 5).
type CallFixup struct {
	SourceIndex int
	IDLoadIndex int
	Callee      string
}

// CompiledMethod is the output of translating one IR method (spec.md §3).
type CompiledMethod struct {
	Source *ir.Method
	Buf    Buffer

	// offsets maps an IR instruction's identity to the buffer index of its
	// first emitted SPE instruction, used for branch-target resolution.
	offsets map[*ir.Inst]int

	BranchFixups []BranchFixup
	CallFixups   []CallFixup

	MaxStackDepth int
}

func newCompiledMethod(src *ir.Method) *CompiledMethod {
	return &CompiledMethod{
		Source:  src,
		offsets: make(map[*ir.Inst]int),
	}
}

func (cm *CompiledMethod) recordOffset(n *ir.Inst, idx int) { cm.offsets[n] = idx }

func (cm *CompiledMethod) offsetOf(n *ir.Inst) (int, bool) {
	idx, ok := cm.offsets[n]
	return idx, ok
}

// Name returns the originating method's identity.
func (cm *CompiledMethod) Name() string { return cm.Source.Name }
