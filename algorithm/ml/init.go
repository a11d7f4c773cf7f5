package ml

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// InitStrategy 质心初始化策略，封闭集合，由配置选择。
type InitStrategy string

const (
	// Weighted k-means++：按到最近已选质心距离的平方加权抽样。
	Weighted InitStrategy = "weighted"
	// Uniform 均匀抽取 k 个不同的样本作为初始质心。
	Uniform InitStrategy = "uniform"
)


// ParseInitStrategy 解析初始化策略，接受 kmeans++ 与 random 两个别名。
func ParseInitStrategy(s string) (InitStrategy, error) {
	switch normalizeName(s) {
	case "", "weighted", "kmeans++", "k-means++", "kmeanspp":
		return Weighted, nil
	case "uniform", "random":
		return Uniform, nil
	default:
		return "", xerrors.Configuration("unknown init %q, expected weighted (kmeans++) or uniform (random)", s).
			WithContext("init", s)
	}
}

// NewRand 创建 PCG 随机源。seed 为空时使用 crypto/rand 生成种子。
func NewRand(seed *int64) *rand.Rand {
	if seed != nil {
		s := uint64(*seed) //nolint:gosec // 种子按位复用即可。
		return rand.New(rand.NewPCG(s, s))
	}
	var b [16]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		ts := uint64(time.Now().UnixNano()) //nolint:gosec // 仅作为降级种子。
		binary.LittleEndian.PutUint64(b[:8], ts)
		binary.LittleEndian.PutUint64(b[8:], ts^0x9e3779b97f4a7c15)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// Initialize 按策略从 X 的行中选出 k 个初始质心，返回 k × d 的新矩阵。
// 调用方需保证 2 <= k <= rows。
func Initialize(strategy InitStrategy, X *mat.Dense, k int, rng *rand.Rand) (*mat.Dense, error) {
	n, d := X.Dims()
	if k < 1 || k > n {
		return nil, xerrors.Configuration("n_clusters %d exceeds number of samples %d", k, n)
	}
	centroids := mat.NewDense(k, d, nil)

	switch strategy {
	case Uniform:
		idx := make([]int, k)
		sampleuv.WithoutReplacement(idx, n, rng)
		for i, row := range idx {
			centroids.SetRow(i, X.RawRowView(row))
		}
	case Weighted:
		centroids.SetRow(0, X.RawRowView(rng.IntN(n)))
		minDist := make([]float64, n)
		for i := range n {
			minDist[i] = sqDist(X.RawRowView(i), centroids.RawRowView(0), nil)
		}
		buf := make([]float64, d)
		for c := 1; c < k; c++ {
			next := -1
			if p := weightedProbabilities(minDist); p != nil {
				if idx, ok := sampleuv.NewWeighted(p, rng).Take(); ok {
					next = idx
				}
			}
			if next < 0 {
				// 所有点都与已选质心重合，退化为均匀抽样
				next = rng.IntN(n)
			}
			centroids.SetRow(c, X.RawRowView(next))
			chosen := centroids.RawRowView(c)
			for i := range n {
				if dd := sqDist(X.RawRowView(i), chosen, buf); dd < minDist[i] {
					minDist[i] = dd
				}
			}
		}
	default:
		return nil, xerrors.Configuration("unknown init %q", string(strategy))
	}
	return centroids, nil
}

// weightedProbabilities 供 Initialize 调用，测试中可替换以观察每一步的分布。
var weightedProbabilities = WeightedProbabilities

// WeightedProbabilities 把到最近质心的距离平方转换为抽样概率 d²/Σd²。
// 全部为零时返回 nil，调用方退化为均匀抽样。
func WeightedProbabilities(minDistSq []float64) []float64 {
	total := floats.Sum(minDistSq)
	if total <= 0 {
		return nil
	}
	p := make([]float64, len(minDistSq))
	floats.ScaleTo(p, 1/total, minDistSq)
	return p
}

// sqDist 平方欧氏距离。buf 可复用，为 nil 时内部分配。
func sqDist(a, b, buf []float64) float64 {
	if buf == nil {
		buf = make([]float64, len(a))
	}
	floats.SubTo(buf, a, b)
	return floats.Dot(buf, buf)
}
