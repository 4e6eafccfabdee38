package decorate

import "sort"

// MaxGapFill is the largest id step between two matches that is still
// treated as sampling noise: steps up to it (fewer than 8 missing cells)
// are filled, larger steps are separate features.
const MaxGapFill = 8

// FillGaps returns the sorted unique ids with short gaps filled in.
func FillGaps(ids []int) []int {
	s := sortedUnique(ids)
	if len(s) < 2 {
		return s
	}
	out := make([]int, 0, len(s))
	out = append(out, s[0])
	for i := 1; i < len(s); i++ {
		if d := s[i] - s[i-1]; d > 1 && d <= MaxGapFill {
			for v := s[i-1] + 1; v < s[i]; v++ {
				out = append(out, v)
			}
		}
		out = append(out, s[i])
	}
	return out
}

// FillRowGaps fills short gaps between columns of one latitude row of the
// given width, including the gap that wraps across the ±180° seam.
func FillRowGaps(cols []int, width int) []int {
	if width <= 0 {
		return nil
	}
	in := make([]int, 0, len(cols))
	for _, c := range cols {
		c %= width
		if c < 0 {
			c += width
		}
		in = append(in, c)
	}
	out := FillGaps(in)
	if len(out) < 2 || len(out) == width {
		return out
	}
	first, last := out[0], out[len(out)-1]
	if d := first + width - last; d > 1 && d <= MaxGapFill {
		var head []int
		for v := 0; v < first; v++ {
			head = append(head, v)
		}
		for v := last + 1; v < width; v++ {
			out = append(out, v)
		}
		out = append(head, out...)
	}
	return out
}

func sortedUnique(ids []int) []int {
	s := append([]int(nil), ids...)
	sort.Ints(s)
	out := s[:0]
	for _, v := range s {
		if len(out) > 0 && v == out[len(out)-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
