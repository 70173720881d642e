package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	name  string
	phase Phase
	log   *[]string
}

func (r recorder) Phase() Phase         { return r.phase }
func (r recorder) Update(time.Duration) { *r.log = append(*r.log, r.name) }

func TestRunnerOrdersByPhaseStable(t *testing.T) {
	var log []string
	run := NewRunner()
	run.Register(recorder{"cleanup", PhaseCleanup, &log})
	run.Register(recorder{"apply-a", PhaseApply, &log})
	run.Register(recorder{"process", PhaseProcess, &log})
	run.Register(recorder{"apply-b", PhaseApply, &log})

	run.Tick(time.Millisecond)
	assert.Equal(t, []string{"process", "apply-a", "apply-b", "cleanup"}, log)

	log = nil
	run.Register(recorder{"input", PhaseInput, &log})
	run.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "process", "apply-a", "apply-b", "cleanup"}, log, "re-sorted after a late Register")
}
