package coref

import "math"

// MaxWeightAssignment finds a one-to-one matching between rows and columns
// of weights that maximizes the total weight. It returns, for each row, the
// matched column or -1 when the row is unmatched (only possible when there
// are more rows than columns).
//
// The Hungarian algorithm with row and column potentials is used, which
// runs in O(n^2 m) for n <= m and is deterministic for a given input.
func MaxWeightAssignment(weights [][]float64) []int {
	rows := len(weights)
	if rows == 0 {
		return nil
	}
	cols := len(weights[0])
	assignment := make([]int, rows)
	for i := range assignment {
		assignment[i] = -1
	}
	if cols == 0 {
		return assignment
	}

	if rows > cols {
		transposed := make([][]float64, cols)
		for j := range transposed {
			transposed[j] = make([]float64, rows)
			for i := 0; i < rows; i++ {
				transposed[j][i] = weights[i][j]
			}
		}
		for j, i := range MaxWeightAssignment(transposed) {
			if i >= 0 {
				assignment[i] = j
			}
		}
		return assignment
	}

	// Minimize negated weights; arrays are 1-indexed with 0 as a sentinel.
	n, m := rows, cols
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	match := make([]int, m+1)
	way := make([]int, m+1)

	for i := 1; i <= n; i++ {
		match[0] = i
		j0 := 0
		minv := make([]float64, m+1)
		used := make([]bool, m+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := match[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := -weights[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[match[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if match[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			match[j0] = match[j1]
			j0 = j1
		}
	}

	for j := 1; j <= m; j++ {
		if match[j] != 0 {
			assignment[match[j]-1] = j - 1
		}
	}
	return assignment
}
