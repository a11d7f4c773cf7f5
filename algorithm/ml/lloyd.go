package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Assign 将每个样本分配到平方欧氏距离最近的质心，距离相同取下标最小者。
// labels 长度足够时原地复用。
func Assign(X, centroids *mat.Dense, labels []int) []int {
	n, d := X.Dims()
	k, _ := centroids.Dims()
	if cap(labels) < n {
		labels = make([]int, n)
	}
	labels = labels[:n]

	buf := make([]float64, d)
	for i := range n {
		row := X.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c := range k {
			if dd := sqDist(row, centroids.RawRowView(c), buf); dd < bestDist {
				best, bestDist = c, dd
			}
		}
		labels[i] = best
	}
	return labels
}

// Update 把每个质心原地更新为所属样本的均值，返回各簇大小。
// 空簇保留原质心不变，不会重新选点，该簇可能一直为空。
func Update(X *mat.Dense, labels []int, centroids *mat.Dense) []int {
	k, d := centroids.Dims()
	sums := mat.NewDense(k, d, nil)
	sizes := make([]int, k)
	for i, c := range labels {
		floats.Add(sums.RawRowView(c), X.RawRowView(i))
		sizes[c]++
	}
	for c := range k {
		if sizes[c] == 0 {
			continue
		}
		floats.ScaleTo(centroids.RawRowView(c), 1/float64(sizes[c]), sums.RawRowView(c))
	}
	return sizes
}

// Converged 判断两组质心的最大坐标差是否不超过 tol，同时返回该差值。
func Converged(prev, next *mat.Dense, tol float64) (bool, float64) {
	shift := floats.Distance(prev.RawMatrix().Data, next.RawMatrix().Data, math.Inf(1))
	return shift <= tol, shift
}

// Inertia 各样本到所属质心的平方距离之和。
func Inertia(X, centroids *mat.Dense, labels []int) float64 {
	_, d := X.Dims()
	buf := make([]float64, d)
	total := 0.0
	for i, c := range labels {
		total += sqDist(X.RawRowView(i), centroids.RawRowView(c), buf)
	}
	return total
}
