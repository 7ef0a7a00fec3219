package image

import (
	"golang.org/x/arch/x86/x86asm"
)

// scanRefs decodes code, which starts at address start, and reports every
// address an instruction names: branch targets, RIP-relative and absolute
// memory operands, and immediates. Undecodable bytes are stepped over one
// at a time.
func scanRefs(code []byte, start uint64, mode int, visit func(target uint64)) {
	mask := ^uint64(0)
	if mode == 32 {
		mask = 0xFFFFFFFF
	}

	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], mode)
		if err != nil || inst.Len == 0 {
			off++
			continue
		}
		next := start + uint64(off+inst.Len)

		for _, arg := range inst.Args {
			if arg == nil {
				break
			}
			switch a := arg.(type) {
			case x86asm.Rel:
				visit((next + uint64(int64(a))) & mask)
			case x86asm.Mem:
				switch {
				case a.Base == x86asm.RIP:
					visit(next + uint64(a.Disp))
				case a.Base == 0 && a.Index == 0:
					visit(uint64(a.Disp) & mask)
				}
			case x86asm.Imm:
				visit(uint64(a) & mask)
			}
		}
		off += inst.Len
	}
}

// decodeMode maps a pointer size to the x86asm decoder mode.
func decodeMode(pointerSize int) int {
	if pointerSize == 8 {
		return 64
	}
	return 32
}
