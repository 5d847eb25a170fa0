package health

import (
	"context"
	"runtime/metrics"

	"github.com/go-faster/errors"
)

const (
	goroutinesMetric  = "/sched/goroutines:goroutines"
	heapObjectsMetric = "/memory/classes/heap/objects:bytes"
)

func readUint64(name string) (uint64, error) {
	s := []metrics.Sample{{Name: name}}
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0, errors.Errorf("runtime metric %s unavailable", name)
	}
	return s[0].Value.Uint64(), nil
}

// GoroutineCountCheck fails once more than limit goroutines are running.
// A steady climb usually means leaked request or consumer goroutines.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		n, err := readUint64(goroutinesMetric)
		if err != nil {
			return err
		}
		if n > uint64(limit) {
			return errors.Errorf("%d goroutines running, limit %d", n, limit)
		}
		return nil
	}
}

// HeapLimitCheck fails when live heap objects occupy more than limit bytes.
func HeapLimitCheck(limit uint64) CheckFunc {
	return func(context.Context) error {
		n, err := readUint64(heapObjectsMetric)
		if err != nil {
			return err
		}
		if n > limit {
			return errors.Errorf("heap objects use %d bytes, limit %d", n, limit)
		}
		return nil
	}
}
