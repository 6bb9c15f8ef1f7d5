package providers

import (
	"context"

	"github.com/openfroyo/deckhand/pkg/drift"
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/resources"
)

func jobUnit(env *Env, j *resources.Job) *engine.Unit {
	u := &engine.Unit{Resource: j.ID, Action: j.Action}
	d := env.Detector

	// Disabled jobs are left on the server untouched.
	if j.Action == engine.ActionDisable {
		return u
	}

	var report *drift.Report
	u.Steps = []engine.Step{&engine.FuncStep{
		Label: "job " + j.Name,
		CheckFn: func(ctx context.Context) (bool, error) {
			var err error
			if report, err = d.Check(ctx, j); err != nil {
				return false, err
			}
			return report.Differs(), nil
		},
		ApplyFn: func(ctx context.Context) error {
			return d.Push(ctx, j, report.Desired)
		},
	}}
	return u
}
