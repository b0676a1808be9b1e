package cmds

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

type ServeSettings struct {
	Addr string `glazed.parameter:"addr"`
}

var _ cmds.BareCommand = (*ServeCommand)(nil)

func NewServeCommand() (*cobra.Command, error) {
	c := &ServeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"serve",
			cmds.WithShort("Serve the chat, plan and tool endpoints over HTTP"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"addr",
					parameters.ParameterTypeString,
					parameters.WithHelp("Listen address (default from server.addr)"),
				),
			),
		),
	}
	return cli.BuildCobraCommand(c)
}

func (c *ServeCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	s := &ServeSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServe(ctx, s.Addr)
}

func runServe(ctx context.Context, addr string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if addr != "" {
		s.Server.Addr = addr
	}
	app, err := NewApp(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	if err := app.RequireProvider(); err != nil {
		return err
	}

	router, err := events.NewEventRouter(events.WithVerbose(verboseEvents()))
	if err != nil {
		return errors.Wrap(err, "create event router")
	}
	router.AddHandler("log-events", events.TopicEvents, router.LogEvents)

	srv := &http.Server{
		Addr: s.Server.Addr,
		Handler: server.New(app.Agent,
			server.WithThreads(app.Threads),
			server.WithRouter(router),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		<-router.Running()
		log.Info().Str("addr", s.Server.Addr).Int("tools", app.Registry.Count()).Msg("steward: serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("steward: http shutdown")
		}
		return router.Close()
	})
	return eg.Wait()
}
