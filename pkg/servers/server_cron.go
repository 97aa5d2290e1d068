package servers

import (
	"context"
	"sync"

	"github.com/qmdx00/lifecycle"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cronServer runs a single scheduled job, the periodic reminder tick, on the
// application lifecycle.
type cronServer struct {
	ctx      context.Context //nolint:containedctx
	name     string
	internal *cron.Cron
	done     chan struct{}
	once     sync.Once
}

func NewCronServer(name string, spec string, job func(context.Context)) (lifecycle.Server, error) {
	server := &cronServer{
		name:     name,
		internal: cron.New(),
		done:     make(chan struct{}),
	}

	_, err := server.internal.AddFunc(spec, func() {
		job(server.ctx)
	})
	if err != nil {
		return nil, ErrServerFailedToStart(name, err)
	}

	return server, nil
}

func (server *cronServer) Run(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "startup").Str("component", server.name).Msg("starting up")

	server.ctx = ctx
	server.internal.Start()

	<-server.done

	return nil
}

func (server *cronServer) Stop(ctx context.Context) error {
	log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopping")
	defer log.Ctx(ctx).Info().Str("stage", "shut down").Str("component", server.name).Msg("stopped")

	stopped := server.internal.Stop()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	server.once.Do(func() { close(server.done) })

	return nil
}
