package nn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Component names accepted by FreezeSubset. Individual residual blocks
// are addressed as "tower.<index>".
const (
	ComponentEncoder = "encoder"
	ComponentTower   = "tower"
	ComponentHead    = "head"
)

// FreezePolicy names the sub-components that stay fixed during a
// training phase.
type FreezePolicy struct {
	Frozen []string
}

// HeadOnly fine-tunes the head on top of a pretrained encoder and tower.
var HeadOnly = FreezePolicy{Frozen: []string{ComponentEncoder, ComponentTower}}

func (p FreezePolicy) Apply(e *Evaluator) error {
	return e.FreezeSubset(p.Frozen...)
}

func (p FreezePolicy) String() string {
	if len(p.Frozen) == 0 {
		return "none"
	}
	return strings.Join(p.Frozen, ",")
}

// FreezeSubset marks the parameters of the named components as not
// trainable. Frozen normalization layers use their running statistics.
// Freezing an already frozen component is a no-op.
func (e *Evaluator) FreezeSubset(names ...string) error {
	var params = e.Params()
	for _, name := range names {
		var found bool
		for _, p := range params {
			if inComponent(p.Name, name) {
				found = true
				p.Frozen = true
			}
		}
		if !found {
			return errors.Wrap(ErrUnknownComponent, name)
		}
		for i, bn := range e.batchNorms() {
			if inComponent(fmt.Sprintf("tower.%d.norm", i), name) {
				bn.Frozen = true
			}
		}
	}
	return nil
}

func inComponent(paramName, component string) bool {
	return paramName == component || strings.HasPrefix(paramName, component+".")
}
