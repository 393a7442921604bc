package ir

import "testing"

func TestWalkVisitsParentBeforeChildren(t *testing.T) {
	leaf := &Inst{Op: OpLdcI4, IVal: 1}
	parent := &Inst{Op: OpAdd, Kids: []*Inst{leaf, leaf}}

	var seen []Opcode
	Walk([]*Inst{parent}, func(n *Inst) { seen = append(seen, n.Op) })

	if len(seen) != 3 {
		t.Fatalf("want 3 visits, got %d", len(seen))
	}
	if seen[0] != OpAdd {
		t.Fatalf("want parent visited first, got %v", seen[0])
	}
}

func TestMethodCounts(t *testing.T) {
	m := &Method{
		Locals: []Local{{}, {}},
		Params: []Param{{}},
	}
	if m.NumLocals() != 2 {
		t.Fatalf("want 2 locals, got %d", m.NumLocals())
	}
	if m.NumArgs() != 1 {
		t.Fatalf("want 1 arg, got %d", m.NumArgs())
	}
}
