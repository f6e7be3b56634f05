package timing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	ops  []string
	errs []error
}

func (r *recorder) Observe(op string, _ time.Duration, err error) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func TestTrack(t *testing.T) {
	rec := &recorder{}

	run := func(fail bool) (err error) {
		defer Track(rec, "op", time.Now(), &err)
		if fail {
			return errors.New("boom")
		}
		return nil
	}

	assert.NoError(t, run(false))
	assert.Error(t, run(true))

	assert.Equal(t, []string{"op", "op"}, rec.ops)
	assert.NoError(t, rec.errs[0])
	assert.EqualError(t, rec.errs[1], "boom")
}

func TestTrackNilObserver(t *testing.T) {
	assert.NotPanics(t, func() { Track(nil, "op", time.Now(), nil) })
	assert.Equal(t, Nop, OrNop(nil))
}
