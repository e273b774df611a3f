// Package decomposition は結合残差ベクトルの主成分分析を提供する。
package decomposition

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// PrincipalComponentData は学習済みの主成分基底
type PrincipalComponentData struct {
	// Mean は各次元の平均 (D)
	Mean []float64
	// Eigenvectors は主成分を行に持つ行列 (k × D)
	Eigenvectors *mat.Dense
	// Eigenvalues は降順の固有値 (k)、全て非負
	Eigenvalues []float64
}

// Components は主成分の数 k を返す
func (d *PrincipalComponentData) Components() int {
	return len(d.Eigenvalues)
}

// Dimension は元の空間の次元 D を返す
func (d *PrincipalComponentData) Dimension() int {
	return len(d.Mean)
}

// Validate は形状と固有値の順序を検査する
func (d *PrincipalComponentData) Validate() error {
	if d == nil || d.Eigenvectors == nil {
		return errors.NewModelError("PrincipalComponentData.Validate", "empty data", errors.ErrEmptyData)
	}
	k, dim := d.Eigenvectors.Dims()
	if k != len(d.Eigenvalues) {
		return errors.NewDimensionError("PrincipalComponentData.Validate", len(d.Eigenvalues), k, 0)
	}
	if dim != len(d.Mean) {
		return errors.NewDimensionError("PrincipalComponentData.Validate", len(d.Mean), dim, 1)
	}
	for i, v := range d.Eigenvalues {
		if v < 0 {
			return errors.NewValidationError("eigenvalues", "must not be negative", v)
		}
		if i > 0 && v > d.Eigenvalues[i-1] {
			return errors.NewValidationError("eigenvalues", "must be in descending order", v)
		}
	}
	return nil
}

// PrincipalComponentAnalysisModel は共分散行列の固有分解による PCA
//
//	pca := decomposition.NewPrincipalComponentAnalysisModel(30)
//	data, err := pca.FitData(residuals.Combined())
//	coeffs, err := pca.ReduceData(residuals.Combined(), data)
type PrincipalComponentAnalysisModel struct {
	model.BaseEstimator

	NComponents int
	Data        *PrincipalComponentData
	Logger      log.Logger
}

var _ model.Transformer = (*PrincipalComponentAnalysisModel)(nil)

// NewPrincipalComponentAnalysisModel は k 成分の PCA を作成する
func NewPrincipalComponentAnalysisModel(nComponents int) *PrincipalComponentAnalysisModel {
	return &PrincipalComponentAnalysisModel{NComponents: nComponents}
}

func (m *PrincipalComponentAnalysisModel) logger() log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.GetLogger()
}

// Fit は model.Transformer を実装する
func (m *PrincipalComponentAnalysisModel) Fit(X mat.Matrix) error {
	data, err := m.FitData(X)
	if err != nil {
		return err
	}
	m.Data = data
	m.SetFitted()
	return nil
}

// relativeEigenvalueCutoff より小さい相対固有値の成分は保持しない
const relativeEigenvalueCutoff = 1e-10

// FitData は X (n × D) を平均中心化し、共分散行列の上位 k 個の固有ベクトルを返す。
// k が D を超える場合は D に切り詰め、固有値が λ_max·1e-10 以下の成分も落とす。
func (m *PrincipalComponentAnalysisModel) FitData(X mat.Matrix) (data *PrincipalComponentData, err error) {
	defer errors.Recover(&err, "PrincipalComponentAnalysisModel.Fit")

	n, dim := X.Dims()
	if n == 0 || dim == 0 {
		return nil, errors.NewModelError("PrincipalComponentAnalysisModel.Fit", "empty data", errors.ErrEmptyData)
	}
	if n < 2 {
		return nil, errors.NewValueError("PrincipalComponentAnalysisModel.Fit", "at least two samples are required")
	}
	if m.NComponents <= 0 {
		return nil, errors.NewValidationError("n_components", "must be positive", m.NComponents)
	}
	k := m.NComponents
	if k > dim {
		m.logger().Warn("requested more components than dimensions, clamping",
			log.ComponentsKey, k, log.FeaturesKey, dim)
		k = dim
	}

	mean := make([]float64, dim)
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, X)
		mean[j] = stat.Mean(col, nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, X, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, errors.NewModelError("PrincipalComponentAnalysisModel.Fit", "eigendecomposition failed", errors.ErrSingularMatrix)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// 固有値は昇順で返るので降順に並べ替える
	order := make([]int, dim)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	// 数値的にゼロの固有値を持つ成分は保持しない
	kept := 1
	for kept < k && values[order[kept]] > relativeEigenvalueCutoff*values[order[0]] {
		kept++
	}
	if kept < k {
		m.logger().Warn("dropping components with vanishing eigenvalues",
			log.ComponentsKey, kept, log.FeaturesKey, dim)
		k = kept
	}

	data = &PrincipalComponentData{
		Mean:         mean,
		Eigenvectors: mat.NewDense(k, dim, nil),
		Eigenvalues:  make([]float64, k),
	}
	vec := make([]float64, dim)
	for i := 0; i < k; i++ {
		mat.Col(vec, order[i], &vectors)
		data.Eigenvectors.SetRow(i, vec)
		// 丸め誤差による負の固有値は 0 とする
		data.Eigenvalues[i] = max(values[order[i]], 0)
	}

	m.logger().Debug("pca fitted",
		log.SamplesKey, n, log.FeaturesKey, dim, log.ComponentsKey, k)
	return data, nil
}

// ReduceData は X (n × D) を主成分係数 (n × k) に射影する
func (m *PrincipalComponentAnalysisModel) ReduceData(X mat.Matrix, data *PrincipalComponentData) (*mat.Dense, error) {
	if data == nil {
		return nil, errors.NewNotFittedError("PrincipalComponentAnalysisModel", "ReduceData")
	}
	n, dim := X.Dims()
	if dim != data.Dimension() {
		return nil, errors.NewDimensionError("PrincipalComponentAnalysisModel.ReduceData", data.Dimension(), dim, 1)
	}
	centered := mat.NewDense(n, dim, nil)
	centered.Apply(func(i, j int, v float64) float64 { return v - data.Mean[j] }, X)

	out := mat.NewDense(n, data.Components(), nil)
	out.Mul(centered, data.Eigenvectors.T())
	return out, nil
}

// ReconstructData は係数 C (n × k) から元の空間のベクトル (n × D) を復元する
func (m *PrincipalComponentAnalysisModel) ReconstructData(C mat.Matrix, data *PrincipalComponentData) (*mat.Dense, error) {
	if data == nil {
		return nil, errors.NewNotFittedError("PrincipalComponentAnalysisModel", "ReconstructData")
	}
	n, k := C.Dims()
	if k != data.Components() {
		return nil, errors.NewDimensionError("PrincipalComponentAnalysisModel.ReconstructData", data.Components(), k, 1)
	}
	out := mat.NewDense(n, data.Dimension(), nil)
	out.Mul(C, data.Eigenvectors)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += data.Mean[j]
		}
	}
	return out, nil
}

// Transform は model.Transformer を実装する
func (m *PrincipalComponentAnalysisModel) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("PrincipalComponentAnalysisModel", "Transform")
	}
	return m.ReduceData(X, m.Data)
}

// InverseTransform は model.Transformer を実装する
func (m *PrincipalComponentAnalysisModel) InverseTransform(C mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("PrincipalComponentAnalysisModel", "InverseTransform")
	}
	return m.ReconstructData(C, m.Data)
}

// PrincipalComponentTraining はダウンサンプリング済みグリッド上の残差から PCA 基底を学習する
type PrincipalComponentTraining struct {
	Dataset     *dataset.Dataset
	Generator   dataset.WaveformGenerator
	Indices     *dataset.DownsamplingIndices
	NComponents int
	Ranges      dataset.ParameterRanges
	Seed        uint64
	Logger      log.Logger
}

// Train は n 個のランダムな波形の残差を生成し、結合して PCA を学習する
func (t *PrincipalComponentTraining) Train(ctx context.Context, n int) (*PrincipalComponentData, error) {
	if t.Indices == nil {
		return nil, errors.NewStageError("PrincipalComponentTraining.Train", "downsampling", "no downsampling indices are available")
	}
	ranges := t.Ranges
	if ranges == (dataset.ParameterRanges{}) {
		ranges = dataset.DefaultParameterRanges()
	}
	g, err := dataset.NewUniformParameterGenerator(ranges, t.Dataset, t.Seed)
	if err != nil {
		return nil, err
	}
	res, _, err := t.Dataset.GenerateResiduals(ctx, t.Generator, g.Generate(n), t.Indices)
	if err != nil {
		return nil, errors.Wrap(err, "residual generation for pca failed")
	}
	pca := &PrincipalComponentAnalysisModel{NComponents: t.NComponents, Logger: t.Logger}
	return pca.FitData(res.Combined())
}
