package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

func (a *app) predictCmd() *cobra.Command {
	var (
		p          = dataset.GW170817()
		fMin, fMax float64
		n          int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Evaluate the polarizations of a trained model as CSV",
		Long: `Evaluate hp and hc on n evenly spaced frequencies and write the columns
f, Re hp, Im hp, Re hc, Im hc. Parameters default to GW170817.

Examples:
  gwsurrogate predict --fmin 20 --fmax 2048 --n 4096
  gwsurrogate predict --q 1.2 --lambda1 400 --lambda2 450 --output hp.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 2 || !(fMax > fMin) {
				return errors.NewValidationError("frequencies", "need n >= 2 and fmax > fmin", []float64{fMin, fMax, float64(n)})
			}
			m, err := a.loadModel()
			if err != nil {
				return err
			}
			freqs := floats.Span(make([]float64, n), fMin, fMax)
			hp, hc, err := m.Predict(freqs, p)
			if err != nil {
				return err
			}

			if output == "" {
				err = writePolarizations(cmd.OutOrStdout(), freqs, hp, hc)
			} else {
				err = writePolarizationsFile(output, freqs, hp, hc)
			}
			if err != nil {
				return err
			}
			a.logger.Info("prediction written", log.PointsKey, n, log.PathKey, output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&fMin, "fmin", 20, "lowest frequency in Hz")
	fl.Float64Var(&fMax, "fmax", 2048, "highest frequency in Hz")
	fl.IntVar(&n, "n", 1024, "number of frequencies")
	fl.StringVar(&output, "output", "", "CSV file (stdout when empty)")
	fl.Float64Var(&p.MassRatio, "q", p.MassRatio, "mass ratio m1/m2 >= 1")
	fl.Float64Var(&p.Lambda1, "lambda1", p.Lambda1, "tidal deformability of the heavier star")
	fl.Float64Var(&p.Lambda2, "lambda2", p.Lambda2, "tidal deformability of the lighter star")
	fl.Float64Var(&p.Chi1, "chi1", p.Chi1, "aligned spin of the heavier star")
	fl.Float64Var(&p.Chi2, "chi2", p.Chi2, "aligned spin of the lighter star")
	fl.Float64Var(&p.DistanceMpc, "distance", p.DistanceMpc, "luminosity distance in Mpc")
	fl.Float64Var(&p.Inclination, "inclination", p.Inclination, "inclination in radians")
	fl.Float64Var(&p.TotalMass, "total-mass", p.TotalMass, "total mass in solar masses")
	fl.Float64Var(&p.ReferencePhase, "phase", p.ReferencePhase, "reference phase in radians")
	fl.Float64Var(&p.TimeShift, "time-shift", p.TimeShift, "time shift in seconds")
	return cmd
}

func writePolarizationsFile(path string, freqs []float64, hp, hc []complex128) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()
	return writePolarizations(f, freqs, hp, hc)
}

func writePolarizations(w io.Writer, freqs []float64, hp, hc []complex128) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"f", "hp_re", "hp_im", "hc_re", "hc_im"}); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i, f := range freqs {
		row := []string{format(f), format(real(hp[i])), format(imag(hp[i])), format(real(hc[i])), format(imag(hc[i]))}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "failed to write csv row")
		}
	}
	cw.Flush()
	return cw.Error()
}
