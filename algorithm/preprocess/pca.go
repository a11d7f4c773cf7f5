package preprocess

import (
	"github.com/wyfcoding/clusterd/xerrors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA 已拟合的主成分投影。
type PCA struct {
	mean      []float64
	basis     *mat.Dense // d × n
	variances []float64
}

// CheckPCAComponents 在计算前校验降维维度：1 <= n <= min(d, rows-1)。
func CheckPCAComponents(n, rows, cols int) error {
	if n < 1 {
		return xerrors.Configuration("pca n_components must be >= 1, got %d", n).WithContext("n_components", n)
	}
	if n > cols {
		return xerrors.Configuration("pca n_components %d exceeds feature count %d", n, cols).
			WithContext("n_components", n).WithContext("features", cols)
	}
	if n > rows-1 {
		return xerrors.Configuration("pca n_components %d exceeds samples-1 (%d)", n, rows-1).
			WithContext("n_components", n).WithContext("samples", rows)
	}
	return nil
}

// FitPCA 在 X 上拟合前 n 个主成分。
func FitPCA(X mat.Matrix, n int) (*PCA, error) {
	r, c := X.Dims()
	if err := CheckPCAComponents(n, r, c); err != nil {
		return nil, err
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return nil, xerrors.DataShape("singular value decomposition did not converge")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	basis := mat.DenseCopyOf(vecs.Slice(0, c, 0, n))

	mean := make([]float64, c)
	col := make([]float64, r)
	for j := range c {
		mat.Col(col, j, X)
		mean[j] = stat.Mean(col, nil)
	}

	return &PCA{
		mean:      mean,
		basis:     basis,
		variances: append([]float64(nil), vars[:n]...),
	}, nil
}

// Components 返回投影后的维度。
func (p *PCA) Components() int {
	_, n := p.basis.Dims()
	return n
}

// ExplainedVariance 返回各主成分的方差。
func (p *PCA) ExplainedVariance() []float64 {
	return append([]float64(nil), p.variances...)
}

// Transform 计算 (X - mean)·basis。
func (p *PCA) Transform(X mat.Matrix) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(p.mean) {
		return nil, xerrors.DataShape("expected %d features, got %d", len(p.mean), c).
			WithContext("expected", len(p.mean)).WithContext("got", c)
	}
	centered := mat.DenseCopyOf(X)
	for i := range r {
		floats.Sub(centered.RawRowView(i), p.mean)
	}
	var out mat.Dense
	out.Mul(centered, p.basis)
	return &out, nil
}
