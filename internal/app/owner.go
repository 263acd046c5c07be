package app

import (
	"context"
	"time"

	"vawter.tech/stopper"
)

// Writer applies mutations to an application State. Implementations apply
// them one at a time on a single owning goroutine.
type Writer interface {
	Update(ctx context.Context, fn func(*State)) error
}

type mutation struct {
	fn   func(*State)
	done chan struct{}
}

// Owner is the single writer for one State. Providers compute results on
// their own goroutines and hand the final write to the owner, which applies
// mutations serially in arrival order.
type Owner struct {
	state   *State
	ops     chan mutation
	exited  chan struct{}
	sctx    *stopper.Context
	closeMu chan struct{}
}

// NewOwner starts an owner goroutine for a fresh State. It stops when ctx is
// canceled or Close is called; later updates fail with ErrStateClosed.
func NewOwner(ctx context.Context, appID string) *Owner {
	o := &Owner{
		state:   NewState(appID),
		ops:     make(chan mutation),
		exited:  make(chan struct{}),
		closeMu: make(chan struct{}, 1),
	}
	o.sctx = stopper.WithContext(ctx)
	o.sctx.Go(func(sctx *stopper.Context) error {
		defer close(o.exited)
		for {
			select {
			case <-sctx.Stopping():
				return nil
			case <-ctx.Done():
				return nil
			case m := <-o.ops:
				m.fn(o.state)
				close(m.done)
			}
		}
	})
	return o
}

// AppID returns the application the state belongs to
func (o *Owner) AppID() string {
	return o.state.AppID
}

// Update hands fn to the owner goroutine and waits until it has been applied.
func (o *Owner) Update(ctx context.Context, fn func(*State)) error {
	m := mutation{fn: fn, done: make(chan struct{})}
	select {
	case <-o.exited:
		return ErrStateClosed
	case <-ctx.Done():
		return ctx.Err()
	case o.ops <- m:
	}
	<-m.done
	return nil
}

// Snapshot returns a copy of the current state
func (o *Owner) Snapshot(ctx context.Context) (State, error) {
	var out State
	err := o.Update(ctx, func(s *State) {
		out = s.Clone()
	})
	return out, err
}

// Close stops the owner goroutine. Updates in flight complete; later ones
// fail with ErrStateClosed.
func (o *Owner) Close() error {
	select {
	case o.closeMu <- struct{}{}:
	default:
		<-o.exited
		return nil
	}
	o.sctx.Stop(100 * time.Millisecond)
	err := o.sctx.Wait()
	<-o.exited
	return err
}

// Done is closed once the owner has stopped accepting updates
func (o *Owner) Done() <-chan struct{} {
	return o.exited
}
