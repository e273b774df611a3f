package linear

// Option configures LinearRegression.
type Option func(*LinearRegression)

// WithFitIntercept sets whether a constant column is fitted. Phase
// flattening always fits one: the constant is the reference-phase offset.
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}
