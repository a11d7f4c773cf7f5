package ml

import (
	"math"
	"strings"

	"github.com/wyfcoding/clusterd/algorithm/preprocess"
	"github.com/wyfcoding/clusterd/xerrors"
)

const (
	// DefaultMaxIter 默认最大迭代次数。
	DefaultMaxIter = 100
	// DefaultTol 默认收敛容差。
	DefaultTol = 1e-4
)

// Config K-Means 训练参数。零值字段由 Fit 按 WithDefaults 补齐。
type Config struct {
	NClusters      int                      `json:"n_clusters"`
	MaxIter        int                      `json:"max_iter"`
	Tol            float64                  `json:"tol"`
	Init           InitStrategy             `json:"init"`
	RandomState    *int64                   `json:"random_state,omitempty"`
	Normalization  preprocess.Normalization `json:"normalization"`
	PCANComponents int                      `json:"pca_n_components,omitempty"` // 0 表示不降维
}

// DefaultConfig 返回 k 个簇的默认配置。
func DefaultConfig(k int) Config {
	return Config{
		NClusters:     k,
		MaxIter:       DefaultMaxIter,
		Tol:           DefaultTol,
		Init:          Weighted,
		Normalization: preprocess.ZScore,
	}
}

// WithDefaults 用默认值补齐零值字段，显式给出的非法值保留以便 Validate 报告。
func (c Config) WithDefaults() Config {
	if c.MaxIter == 0 {
		c.MaxIter = DefaultMaxIter
	}
	if c.Tol == 0 {
		c.Tol = DefaultTol
	}
	if c.Init == "" {
		c.Init = Weighted
	}
	if c.Normalization == "" {
		c.Normalization = preprocess.ZScore
	}
	return c
}

// Validate 校验不依赖数据的参数，并把别名规范化。
func (c Config) Validate() (Config, error) {
	if c.NClusters < 2 {
		return c, xerrors.Configuration("n_clusters must be >= 2, got %d", c.NClusters).
			WithContext("n_clusters", c.NClusters)
	}
	if c.MaxIter <= 0 {
		return c, xerrors.Configuration("max_iter must be > 0, got %d", c.MaxIter).
			WithContext("max_iter", c.MaxIter)
	}
	if math.IsNaN(c.Tol) || c.Tol <= 0 || c.Tol >= 1 {
		return c, xerrors.Configuration("tol must be in (0, 1), got %g", c.Tol).
			WithContext("tol", c.Tol)
	}
	init, err := ParseInitStrategy(string(c.Init))
	if err != nil {
		return c, err
	}
	c.Init = init
	norm, err := preprocess.ParseNormalization(string(c.Normalization))
	if err != nil {
		return c, err
	}
	c.Normalization = norm
	if c.PCANComponents < 0 {
		return c, xerrors.Configuration("pca n_components must be >= 1, got %d", c.PCANComponents).
			WithContext("n_components", c.PCANComponents)
	}
	return c, nil
}

// ValidateFor 在 Validate 基础上校验依赖数据规模的约束：k <= n，降维维度 <= min(d, n-1)。
func (c Config) ValidateFor(rows, cols int) (Config, error) {
	c, err := c.Validate()
	if err != nil {
		return c, err
	}
	if c.NClusters > rows {
		return c, xerrors.Configuration("n_clusters %d exceeds number of samples %d", c.NClusters, rows).
			WithContext("n_clusters", c.NClusters).WithContext("samples", rows)
	}
	if c.PCANComponents > 0 {
		if err := preprocess.CheckPCAComponents(c.PCANComponents, rows, cols); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Shape 返回行切片的行数与首行列数，不做形状校验。
func Shape(X [][]float64) (rows, cols int) {
	if len(X) == 0 {
		return 0, 0
	}
	return len(X), len(X[0])
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
