package sim

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/localiser/internal/localiser/controller"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/particles"
	"github.com/banshee-data/localiser/internal/localiser/tf"
	"github.com/banshee-data/localiser/internal/monitoring"
)

// TruthObserver receives the ground-truth pose of every step.
type TruthObserver interface {
	AddTruth(pose geom.Transform)
}

// Result summarises a run.
type Result struct {
	Steps             int
	TransformFailures int
	PositionErrors    []float64 // Estimate-to-truth distance per processed scan (m)
	FinalError        float64
	MeanError         float64
	FinalYawError     float64
}

// Run feeds steps from s into ctrl until cfg.Steps have been produced or
// ctx is cancelled. Odometry samples are mirrored into transforms when it
// is non-nil. Scans whose sensor transform is unavailable are counted and
// skipped.
func Run(ctx context.Context, s *Simulator, ctrl *controller.Controller, transforms *tf.Buffer, observers ...TruthObserver) (Result, error) {
	var res Result
	for i := 0; i < s.cfg.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		step := s.Next()
		res.Steps++
		for _, o := range observers {
			o.AddTruth(step.Truth)
		}

		if transforms != nil {
			if err := transforms.Set(tf.Stamped{Parent: OdomFrame, Child: BaseFrame, Stamp: step.Stamp, Transform: step.Odom}); err != nil {
				return res, err
			}
		}
		ctrl.HandleOdometry(step.Odom)

		if err := ctrl.HandleScan(ctx, step.Scan); err != nil {
			if errors.Is(err, particles.ErrTransformUnavailable) {
				res.TransformFailures++
				continue
			}
			return res, err
		}

		snap := ctrl.Snapshot(step.Stamp)
		if !snap.HasEstimate {
			continue
		}
		e := math.Hypot(snap.Estimate.X-step.Truth.Translation.X, snap.Estimate.Y-step.Truth.Translation.Y)
		res.PositionErrors = append(res.PositionErrors, e)
		res.FinalError = e
		res.FinalYawError = math.Abs(geom.NormalizeAngle(snap.Estimate.Yaw - step.Truth.Yaw()))

		monitoring.Debugf("step %d: error %.3f m, yaw error %.3f rad", step.Index, e, res.FinalYawError)
	}

	if len(res.PositionErrors) > 0 {
		res.MeanError = stat.Mean(res.PositionErrors, nil)
	}
	return res, nil
}
