package neural

import "math"

// earlyStopping は改善が tol 未満のエポックを数え、patience を超えたら停止を指示する
type earlyStopping struct {
	patience  int
	tol       float64
	minimize  bool
	best      float64
	bestEpoch int
	noImprove int
}

func newEarlyStopping(patience int, tol float64, minimize bool) *earlyStopping {
	best := math.Inf(-1)
	if minimize {
		best = math.Inf(1)
	}
	return &earlyStopping{patience: patience, tol: tol, minimize: minimize, best: best}
}

// update はエポックのスコアを記録し、最良値が更新されたかと停止すべきかを返す
func (es *earlyStopping) update(epoch int, score float64) (improvedBest, stop bool) {
	var improved bool
	if es.minimize {
		improved = score <= es.best-es.tol
		improvedBest = score < es.best
	} else {
		improved = score >= es.best+es.tol
		improvedBest = score > es.best
	}
	if improved {
		es.noImprove = 0
	} else {
		es.noImprove++
	}
	if improvedBest {
		es.best = score
		es.bestEpoch = epoch
	}
	return improvedBest, es.noImprove > es.patience
}
