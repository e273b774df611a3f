package neural

import (
	_ "embed"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// TrialTableVersion は読み込み可能な表のバージョン
const TrialTableVersion = 1

//go:embed data/best_trials.yaml
var bestTrialsYAML []byte

// TrialTable はハイパーパラメータ探索のパレート最適な試行の一覧。読み込み後は変更しない。
type TrialTable struct {
	Version int     `yaml:"version"`
	Trials  []Trial `yaml:"trials"`
}

// ParseTrialTable は YAML から表を読み込み、バージョンを検査する
func ParseTrialTable(data []byte) (*TrialTable, error) {
	var t TrialTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "failed to decode trial table")
	}
	if t.Version != TrialTableVersion {
		return nil, errors.NewNotSupportedError("trial table version", t.Version)
	}
	return &t, nil
}

var (
	defaultTableOnce sync.Once
	defaultTable     *TrialTable
	defaultTableErr  error
)

// DefaultTrialTable は埋め込みの表をプロセス内で一度だけ読み込んで返す
func DefaultTrialTable() (*TrialTable, error) {
	defaultTableOnce.Do(func() {
		defaultTable, defaultTableErr = ParseTrialTable(bestTrialsYAML)
	})
	return defaultTable, defaultTableErr
}

// BestTrialUnderN は n_train ≤ n の試行のうち Values[0] が最小のものを返す
func (t *TrialTable) BestTrialUnderN(n int) (*Hyperparameters, error) {
	if t == nil {
		return nil, errors.NewValueError("TrialTable.BestTrialUnderN", "no trial table")
	}
	var candidates []Trial
	for _, tr := range t.Trials {
		if nTrain, ok := tr.Params["n_train"]; ok && nTrain <= float64(n) && len(tr.Values) > 0 {
			candidates = append(candidates, tr)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.Newf("no trial in table version %d uses at most %d training waveforms", t.Version, n)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Values[0] < candidates[j].Values[0] })
	return HyperparametersFromTrial(candidates[0])
}

// DefaultHyperparametersFor は表から n 以下の学習数で最良の試行を探し、
// 見つからなければ固定のデフォルトを返す
func DefaultHyperparametersFor(table *TrialTable, n int) *Hyperparameters {
	if table != nil {
		if h, err := table.BestTrialUnderN(n); err == nil {
			return h
		}
	}
	return DefaultHyperparameters(0)
}
