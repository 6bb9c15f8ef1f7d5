package providers

import (
	"fmt"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/resources"
)

// Plan returns the units that converge tree. The result is a single server
// unit whose children follow the tree's declaration order.
func Plan(env *Env, tree *resources.Tree) ([]*engine.Unit, error) {
	if tree == nil || tree.Server == nil {
		return nil, engine.NewValidationError("nothing to converge: no server declared", nil).
			WithCode(engine.ErrCodeRequired).
			WithOperation("plan")
	}
	required := []struct {
		name   string
		absent bool
	}{
		{"system", env.System == nil},
		{"renderer", env.Renderer == nil},
		{"installer", env.Installer == nil},
		{"supervisor", env.Supervisor == nil},
		{"detector", env.Detector == nil},
	}
	for _, r := range required {
		if r.absent {
			return nil, engine.NewInternalError(fmt.Sprintf("provider environment lacks a %s", r.name), nil).
				WithOperation("plan")
		}
	}
	return []*engine.Unit{serverUnit(env, tree)}, nil
}
