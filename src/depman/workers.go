package depman

import (
	"runtime"

	"gopkg.in/op/go-logging.v1"

	"go.uber.org/automaxprocs/maxprocs"
)

var log = logging.MustGetLogger("depman")

// defaultWorkerCount sizes the download pipeline's worker pool at 4x the
// number of CPUs actually available to this process, honouring any
// container cgroup quota.
func defaultWorkerCount() int {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debug)); err != nil {
		log.Debug("could not set GOMAXPROCS from cgroup quota: %s", err)
	}
	n := runtime.NumCPU() * 4
	if n < 1 {
		return 1
	}
	return n
}
