package service

import (
	"context"
	"errors"

	"github.com/4ea-ind/ssatrend/internal/journal"
)

// Recorders fans an entry out to every recorder. All are called; their
// errors are joined.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(ctx context.Context, e journal.Entry) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
