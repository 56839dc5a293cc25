package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/bryndza/pkg/logger"
)

// RunParallel starts every session, runs fn on each concurrently, and stops
// them all. The first error cancels the shared context; it is returned after
// every session has been stopped.
func RunParallel(ctx context.Context, sessions []*Session, fn func(ctx context.Context, s *Session) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := s.Start(gctx); err != nil {
				return fmt.Errorf("%s: %w", s.platform.Name(), err)
			}
			defer func() {
				// Stop with the parent context so cancellation of the group
				// does not skip the disconnect.
				if err := s.Stop(ctx); err != nil {
					logger.Warn("session %s: stop: %v", s.id, err)
				}
			}()
			if err := fn(gctx, s); err != nil {
				return fmt.Errorf("session %s: %w", s.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
