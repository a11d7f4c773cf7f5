package preprocess

import (
	"strings"

	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Epsilon 加在分母上，避免零方差或常数列时除零。
const Epsilon = 1e-12

// Normalization 标准化方式，取值为封闭集合。
type Normalization string

const (
	// ZScore (x-mean)/(std+ε)，std 为总体标准差。
	ZScore Normalization = "z-score"
	// MinMax (x-min)/(max-min+ε)。
	MinMax Normalization = "minmax"
	// None 恒等变换。
	None Normalization = "none"
)

// ParseNormalization 解析标准化方式，空串视为 z-score。
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "z-score", "z_score", "zscore":
		return ZScore, nil
	case "minmax", "min-max", "min_max":
		return MinMax, nil
	case "none":
		return None, nil
	default:
		return "", xerrors.Configuration("unknown normalization %q, expected one of z-score, minmax, none", s).
			WithContext("normalization", s)
	}
}

// Normalizer 已拟合的标准化器，保存按列的平移量与缩放量。
type Normalizer struct {
	kind  Normalization
	width int
	shift []float64
	scale []float64
}

// FitNormalizer 在训练矩阵上计算标准化统计量。X 中不能再含缺失值。
func FitNormalizer(kind Normalization, X mat.Matrix) (*Normalizer, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, xerrors.DataShape("dataset is empty")
	}
	n := &Normalizer{
		kind:  kind,
		width: c,
		shift: make([]float64, c),
		scale: make([]float64, c),
	}

	col := make([]float64, r)
	for j := range c {
		mat.Col(col, j, X)
		switch kind {
		case ZScore:
			mean, std := stat.PopMeanStdDev(col, nil)
			n.shift[j] = mean
			n.scale[j] = std + Epsilon
		case MinMax:
			lo, hi := floats.Min(col), floats.Max(col)
			n.shift[j] = lo
			n.scale[j] = hi - lo + Epsilon
		case None:
			n.scale[j] = 1
		default:
			return nil, xerrors.Configuration("unknown normalization %q", string(kind))
		}
	}
	return n, nil
}

// Kind 返回标准化方式。
func (n *Normalizer) Kind() Normalization { return n.kind }

// Width 返回拟合时的特征数。
func (n *Normalizer) Width() int { return n.width }

// Transform 使用已存储的统计量变换 X，返回新矩阵，X 不会被修改。
func (n *Normalizer) Transform(X mat.Matrix) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != n.width {
		return nil, xerrors.DataShape("expected %d features, got %d", n.width, c).
			WithContext("expected", n.width).WithContext("got", c)
	}
	out := mat.DenseCopyOf(X)
	if n.kind == None {
		return out, nil
	}
	for i := range r {
		row := out.RawRowView(i)
		floats.Sub(row, n.shift)
		floats.Div(row, n.scale)
	}
	return out, nil
}
