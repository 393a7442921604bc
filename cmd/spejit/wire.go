package main

import "spejit/ir"

// wireInst and wireMethod are the on-disk JSON shape for an IR module
// (spec.md's "IR producer" is an external collaborator; this file is the
// one concrete producer this repo ships, for the -in flag). Branch targets
// cross-reference other nodes of the method by label rather than by Go
// pointer, since JSON has no pointer identity; resolveMethod rebuilds the
// pointer-linked ir.Inst tree the compiler expects afterward. Call targets
// are method names and are carried over as they are.
type wireInst struct {
	Op     int         `json:"op"`
	Label  string      `json:"label,omitempty"`
	Kids   []*wireInst `json:"kids,omitempty"`
	Index  int         `json:"index,omitempty"`
	IVal   int32       `json:"ival,omitempty"`
	LVal   int64       `json:"lval,omitempty"`
	Target string      `json:"target,omitempty"` // label of the branch target
	Callee string      `json:"callee,omitempty"`
	NArgs  int         `json:"nargs,omitempty"`
	HasRet bool        `json:"hasret,omitempty"`
}

type wireLocal struct {
	ZeroInit bool `json:"zeroinit,omitempty"`
}

type wireParam struct{}

type wireMethod struct {
	Name   string      `json:"name"`
	Locals []wireLocal `json:"locals,omitempty"`
	Params []wireParam `json:"params,omitempty"`
	Body   []*wireInst `json:"body"`
}

type wireModule struct {
	Methods []*wireMethod `json:"methods"`
}

// resolveMethod converts a wireMethod into an ir.Method, re-linking every
// labeled branch target to the ir.Inst it actually produced.
func resolveMethod(wm *wireMethod) *ir.Method {
	labels := make(map[string]*ir.Inst)

	var build func(*wireInst) *ir.Inst
	build = func(w *wireInst) *ir.Inst {
		n := &ir.Inst{
			Op:     ir.Opcode(w.Op),
			Index:  w.Index,
			IVal:   w.IVal,
			LVal:   w.LVal,
			Callee: w.Callee,
			NArgs:  w.NArgs,
			HasRet: w.HasRet,
		}
		for _, k := range w.Kids {
			n.Kids = append(n.Kids, build(k))
		}
		if w.Label != "" {
			labels[w.Label] = n
		}
		return n
	}

	body := make([]*ir.Inst, len(wm.Body))
	for i, w := range wm.Body {
		body[i] = build(w)
	}

	var link func(w *wireInst, n *ir.Inst)
	link = func(w *wireInst, n *ir.Inst) {
		if w.Target != "" {
			n.Target = labels[w.Target]
		}
		for i, wk := range w.Kids {
			link(wk, n.Kids[i])
		}
	}
	for i, w := range wm.Body {
		link(w, body[i])
	}

	locals := make([]ir.Local, len(wm.Locals))
	for i, l := range wm.Locals {
		locals[i] = ir.Local{ZeroInit: l.ZeroInit}
	}

	return &ir.Method{
		Name:   wm.Name,
		Locals: locals,
		Params: make([]ir.Param, len(wm.Params)),
		Body:   body,
	}
}
