package bootstrap

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/domain/nav"
	"visionbridge-server-go/internal/domain/speech"
	"visionbridge-server-go/internal/domain/voice"
	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
	"visionbridge-server-go/internal/platform/storage"
	httptransport "visionbridge-server-go/internal/transport/http"
	httpapi "visionbridge-server-go/internal/transport/http/api"
	httpsystem "visionbridge-server-go/internal/transport/http/system"
	"visionbridge-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

type appState struct {
	config      *config.Config
	logger      *logging.Logger
	store       *storage.Store
	vision      *analysis.Provider
	synthesizer *speech.EdgeSynthesizer
	transcriber *voice.WhisperTranscriber
	resolver    *voice.LLMResolver
	navClient   *nav.Client
	interpreter *nav.Interpreter
	router      *httptransport.Router
	wsServer    *ws.Server
}

// Run loads configuration, initialises every dependency and serves until a
// shutdown signal arrives.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	logger := state.logger
	logger.InfoTag("BOOT", "all components initialised")

	defer func() {
		if state.store != nil {
			if err := state.store.Close(); err != nil {
				logger.WarnTag("BOOT", "storage close failed: %v", err)
			}
		}
		logger.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", state.config.Server.IP, state.config.Server.Port)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: state.router.Engine,
	}

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		logger.InfoTag("BOOT", "listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(errors.KindBootstrap, "bootstrap.serve", "http server failed", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		state.wsServer.Shutdown()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return httpSrv.Shutdown(shutdownCtx)
	})

	select {
	case <-signalCtx.Done():
		logger.InfoTag("BOOT", "shutdown signal received")
		cancel()
	case <-groupCtx.Done():
	}

	if err := group.Wait(); err != nil && !goerrors.Is(err, context.Canceled) {
		return err
	}

	logger.InfoTag("BOOT", "server stopped")
	return nil
}

// InitGraph declares the ordered initialisation steps.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      errors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:open",
			Title:     "Open settings database",
			DependsOn: []string{"logging:init"},
			Kind:      errors.KindStorage,
			Execute:   openStorageStep,
		},
		{
			ID:        "providers:init",
			Title:     "Initialise AI providers",
			DependsOn: []string{"logging:init"},
			Kind:      errors.KindConfig,
			Execute:   initProvidersStep,
		},
		{
			ID:        "transport:build",
			Title:     "Build transports",
			DependsOn: []string{"storage:open", "providers:init"},
			Kind:      errors.KindBootstrap,
			Execute:   buildTransportsStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return errors.New(errors.KindBootstrap, "bootstrap.init", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(errors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *errors.Error
			if goerrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(ctx context.Context, state *appState) error {
	result, err := config.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	return nil
}

func initLoggingStep(ctx context.Context, state *appState) error {
	logger, err := logging.New(logging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logging.DefaultLogger = logger
	return nil
}

func openStorageStep(ctx context.Context, state *appState) error {
	store, err := storage.Open(state.config.Storage, state.config.Speech)
	if err != nil {
		return err
	}
	state.store = store
	return nil
}

func initProvidersStep(ctx context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger

	visionCfg, ok := cfg.Vision[cfg.Selected.Vision]
	if !ok {
		return errors.New(errors.KindConfig, "bootstrap.providers",
			fmt.Sprintf("selected vision provider %q not configured", cfg.Selected.Vision))
	}
	state.vision = analysis.NewProvider(visionCfg, logger)
	if err := state.vision.Initialize(); err != nil {
		return err
	}

	state.synthesizer = speech.NewEdgeSynthesizer(cfg.TTS[cfg.Selected.TTS], logger)

	state.transcriber = voice.NewWhisperTranscriber(cfg.STT[cfg.Selected.STT], logger)
	if err := state.transcriber.Initialize(); err != nil {
		return err
	}

	intentCfg := cfg.Intent[cfg.Selected.Intent]
	state.resolver = voice.NewLLMResolver(intentCfg, logger)
	if err := state.resolver.Initialize(); err != nil {
		return err
	}

	state.navClient = nav.NewClient(cfg.Nav, logger)
	if cfg.Nav.MapsAPIKey != "" {
		state.interpreter = nav.NewInterpreter(intentCfg, logger)
		if err := state.interpreter.Initialize(); err != nil {
			return err
		}
	} else {
		logger.WarnTag("BOOT", "maps API key not set, navigation disabled")
	}

	return nil
}

func buildTransportsStep(ctx context.Context, state *appState) error {
	router, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
	})
	if err != nil {
		return err
	}
	state.router = router

	apiService := httpapi.NewService(httpapi.Deps{
		Logger:      state.logger,
		Vision:      state.vision,
		Synthesizer: state.synthesizer,
		Transcriber: state.transcriber,
		Resolver:    state.resolver,
		Interpreter: state.interpreter,
	})
	if err := apiService.Register(ctx, router.Engine); err != nil {
		return err
	}

	state.wsServer = ws.NewServer(ws.SessionDeps{
		Config:      state.config,
		Logger:      state.logger,
		Vision:      state.vision,
		Synthesizer: state.synthesizer,
		Transcriber: state.transcriber,
		Resolver:    state.resolver,
		NavClient:   state.navClient,
		Interpreter: state.interpreter,
		Store:       state.store,
	})
	state.wsServer.Register(router.Engine)

	systemService, err := httpsystem.NewService(state.logger, state.wsServer)
	if err != nil {
		return err
	}
	return systemService.Register(ctx, router.API)
}
