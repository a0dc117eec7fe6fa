package transfer

import (
	"fmt"

	"github.com/dkravets/chanfile/internal/common"
)

// Resolve maps a global byte range onto the ordered part manifest, returning
// the per-part windows that cover exactly [r.Start, r.End], in part order.
//
// Pure and deterministic: the result is derivable from the inputs alone.
// Fails with common.ErrRangeOutOfBounds when the range is inverted or runs
// past the end of the last part, before any I/O has happened.
func Resolve(parts []FilePart, r ByteRange) ([]ResolvedPartRange, error) {
	if r.Start > r.End {
		return nil, fmt.Errorf("%w: start %d after end %d", common.ErrRangeOutOfBounds, r.Start, r.End)
	}

	var resolved []ResolvedPartRange
	var offset uint64 // global offset of the current part's first byte

	for i, p := range parts {
		partEnd := offset + p.Size // exclusive global end of this part

		if r.Start < partEnd && p.Size > 0 {
			pr := ResolvedPartRange{PartIndex: i, Part: p}

			if len(resolved) == 0 {
				pr.StartOffset = r.Start - offset
			}

			if r.End < partEnd {
				pr.EndOffset = r.End - offset + 1
				resolved = append(resolved, pr)
				return resolved, nil
			}

			pr.EndOffset = p.Size
			resolved = append(resolved, pr)
		}

		offset = partEnd
	}

	return nil, fmt.Errorf("%w: end %d beyond total size %d", common.ErrRangeOutOfBounds, r.End, offset)
}
