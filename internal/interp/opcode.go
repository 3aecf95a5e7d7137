package interp

import "github.com/starforth/starforth/internal/cell"

// opcode identifies one of the inner interpreter's compiled-in pseudo-ops:
// the small set of behaviors that aren't dictionary words at all, compiled
// directly into a colon body by the control-flow words. They share the
// cell address space with execution tokens by living in the negative half:
// word-ids allocated by the dictionary start at 1 and only grow, so there
// is no collision.
type opcode cell.Cell

const (
	opLit     opcode = -1 - iota // followed by one literal cell
	opBranch                     // followed by one absolute target address
	opZBranch                    // pop flag; branch if zero
	opPDo                        // (DO): ( limit start -- )
	opPQDo                       // (?DO): ( limit start -- ), skips body if limit=start
	opPLoop                      // (LOOP): followed by the loop-start absolute address
	opPPLoop                     // (+LOOP): followed by the loop-start absolute address
	opExit                       // pop return stack into IP, or halt if return stack is empty
)

func (op opcode) cell() cell.Cell { return cell.Cell(op) }

func asOpcode(c cell.Cell) (opcode, bool) {
	if c < 0 {
		return opcode(c), true
	}
	return 0, false
}
