package util

// matrix represents a 2 dimensional matrix.
type matrix struct {
	nRow, nCol int
	data       []int // row-major nRow*nCol array.
}

// newMatrix returns an n x m matrix.
func newMatrix(n, m int) matrix {
	return matrix{
		nRow: n,
		nCol: m,
		data: make([]int, n*m),
	}
}

func (m matrix) at(i, j int) int {
	return m.data[i*m.nCol+j]
}

func (m matrix) set(i, j, v int) {
	m.data[i*m.nCol+j] = v
}

// computeCell computes the cell (i, j) in a Levenshtein matrix for r1, r2.
func (m matrix) computeCell(i, j int, r1, r2 []byte) {
	if i == 0 {
		m.set(i, j, j)
		return
	}
	if j == 0 {
		m.set(i, j, i)
		return
	}
	if r1[i-1] == r2[j-1] {
		m.set(i, j, m.at(i-1, j-1))
		return
	}

	down := m.at(i-1, j) + 1
	diagonal := m.at(i-1, j-1) + 1
	right := m.at(i, j-1) + 1

	min := down
	if diagonal < min {
		min = diagonal
	}
	if right < min {
		min = right
	}
	m.set(i, j, min)
}

// BoundedEditDistance computes the Levenshtein edit distance between s1
// and s2 (insertions, deletions, substitutions, each costing one point),
// but abandons the computation and returns maxDistance+1 as soon as
// every cell in a row exceeds maxDistance, since the true distance can
// only be larger from there. Used to score seed-and-extend hit
// extensions, where a cheap "this alignment is bad" signal matters more
// than an exact distance once it is already past the scoring cutoff.
// A negative maxDistance disables the early-exit and computes the exact
// distance unconditionally.
func BoundedEditDistance(s1, s2 string, maxDistance int) int {
	r1 := []byte(s1)
	r2 := []byte(s2)
	rows, cols := len(r1), len(r2)

	m := newMatrix(rows+1, cols+1)
	for i := 0; i <= rows; i++ {
		rowMin := -1
		for j := 0; j <= cols; j++ {
			m.computeCell(i, j, r1, r2)
			v := m.at(i, j)
			if rowMin == -1 || v < rowMin {
				rowMin = v
			}
		}
		if maxDistance >= 0 && rowMin > maxDistance {
			return maxDistance + 1
		}
	}
	return m.at(rows, cols)
}
