package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/esdraft/compiler/code"
	"github.com/chazu/esdraft/compiler/constpool"
	"github.com/chazu/esdraft/compiler/emit"
)

var accessNames = []struct {
	bit  code.Access
	name string
}{
	{code.Public, "public"},
	{code.Private, "private"},
	{code.Static, "static"},
	{code.Final, "final"},
	{code.Synthetic, "synthetic"},
}

func accessString(a code.Access) string {
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// Listing disassembles every method of every unit. A full listing adds
// the line, exception handler and local variable tables.
func (cu *CompiledUnit) Listing(full bool) string {
	var sb strings.Builder
	for _, u := range cu.images {
		fmt.Fprintf(&sb, "unit %s", u.Name)
		if u.Super != "" {
			fmt.Fprintf(&sb, " extends %s", u.Super)
		}
		if u.Source.File != "" {
			fmt.Fprintf(&sb, " (source %s)", u.Source.File)
		}
		fmt.Fprintf(&sb, "\n  %d constant(s)\n", len(u.Constants))
		lookup := cu.lookup(u)
		for _, m := range u.Methods {
			fmt.Fprintf(&sb, "\n  %s %s%s  stack=%d locals=%d\n",
				accessString(m.Access), m.Name, m.Desc, m.MaxStack, m.MaxLocals)
			for _, line := range strings.Split(strings.TrimSuffix(emit.Disassemble(m.Code, lookup), "\n"), "\n") {
				sb.WriteString("    ")
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
			if full {
				writeTables(&sb, m)
			}
		}
		sb.WriteByte('\n')
	}
	if full && len(cu.extern) > 0 {
		sb.WriteString("extern pool\n")
		for i, c := range cu.extern {
			fmt.Fprintf(&sb, "  %v  %v\n", constpool.Key(i)|constpool.ExternBit, c)
		}
	}
	return sb.String()
}

func (cu *CompiledUnit) lookup(u *code.UnitImage) emit.ConstantLookup {
	return func(k constpool.Key) (constpool.Constant, bool) {
		table := u.Constants
		if k.IsExtern() {
			table = cu.extern
		}
		if k.Index() >= len(table) {
			return constpool.Constant{}, false
		}
		return table[k.Index()], true
	}
}

func writeTables(sb *strings.Builder, m code.MethodImage) {
	if len(m.Lines) > 0 {
		sb.WriteString("    lines:\n")
		for _, l := range m.Lines {
			fmt.Fprintf(sb, "      %04d  line %d\n", l.Offset, l.Line)
		}
	}
	if len(m.Handlers) > 0 {
		sb.WriteString("    handlers:\n")
		for _, h := range m.Handlers {
			typ := h.Type
			if typ == "" {
				typ = "any"
			}
			fmt.Fprintf(sb, "      [%04d, %04d) -> %04d  %s\n", h.Start, h.End, h.Target, typ)
		}
	}
	if len(m.Locals) > 0 {
		sb.WriteString("    locals:\n")
		for _, v := range m.Locals {
			fmt.Fprintf(sb, "      %2d  %-12s %-24s [%04d, %04d)\n", v.Slot, v.Name, v.Desc, v.Start, v.End)
		}
	}
}

// buildSMAP renders a JSR-045 source map that relates every line recorded
// in the units' line tables to the same line of the script source.
func (cu *CompiledUnit) buildSMAP(src code.SourceInfo) string {
	first, last := 0, 0
	for _, u := range cu.images {
		for _, m := range u.Methods {
			for _, l := range m.Lines {
				if first == 0 || l.Line < first {
					first = l.Line
				}
				if l.Line > last {
					last = l.Line
				}
			}
		}
	}
	path := src.Path
	if path == "" {
		path = src.File
	}
	var sb strings.Builder
	sb.WriteString("SMAP\n")
	sb.WriteString(cu.Name() + "\n")
	sb.WriteString("Script\n")
	sb.WriteString("*S Script\n")
	sb.WriteString("*F\n")
	fmt.Fprintf(&sb, "+ 1 %s\n%s\n", src.File, path)
	sb.WriteString("*L\n")
	if first > 0 {
		fmt.Fprintf(&sb, "%d#1,%d:%d\n", first, last-first+1, first)
	}
	sb.WriteString("*E\n")
	return sb.String()
}
