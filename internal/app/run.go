package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sfxforwarder/internal/classify"
	"sfxforwarder/internal/command"
	"sfxforwarder/internal/conf"
	"sfxforwarder/internal/config"
	"sfxforwarder/internal/logging"
	"sfxforwarder/internal/options"
	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/protocol"
	"sfxforwarder/internal/sender"
	"sfxforwarder/internal/setup"
	"sfxforwarder/internal/splunkd"
)

// Search command names.
const (
	CommandDatapoints = "tosfx"
	CommandEvents     = "tosfxevents"
)

// Host protocol versions.
const (
	ProtocolV1 = "v1"
	ProtocolV2 = "v2"
)

const confName = "sfx"

// Runtime defines inputs of one search command invocation.
// Params: settings path, protocol, legacy args, fallback session key, host streams, build version.
// Returns: Runtime value used by RunSearch.
type Runtime struct {
	ConfigPath string
	Protocol   string
	Args       []string
	SessionKey string
	Stdin      io.Reader
	Stdout     io.Writer
	Version    string
}

// SetupRuntime defines inputs of one setup handler call.
type SetupRuntime struct {
	ConfigPath string
	SessionKey string
	SplunkdURI string
	Stdout     io.Writer
}

type splunkdAPI interface {
	options.PasswordFinder
	options.CollectionQuerier
	setup.Splunkd
}

type runDeps struct {
	loadConfig func(string) (*config.Config, error)
	newLogger  func(config.LogConfig) (*slog.Logger, func(), error)
	newPoster  func(config.IngestConfig, string, *slog.Logger) (command.Poster, error)
	newSplunkd func(config.SplunkdConfig, string, string) (splunkdAPI, error)
}

// defaultRunDeps provides production dependencies.
// Params: none.
// Returns: dependency set used by RunSearch and RunSetup.
func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig: config.Load,
		newLogger:  logging.New,
		newPoster: func(cfg config.IngestConfig, version string, logger *slog.Logger) (command.Poster, error) {
			return sender.New(sender.Options{
				Timeout:          cfg.Timeout.Duration,
				CompressionLevel: cfg.CompressionLevel,
				UserAgent:        "sfxforwarder/" + version,
				Logger:           logger,
			})
		},
		newSplunkd: func(cfg config.SplunkdConfig, uri, sessionKey string) (splunkdAPI, error) {
			return splunkd.New(splunkd.Options{
				URI:                uri,
				App:                cfg.App,
				SessionKey:         sessionKey,
				Timeout:            cfg.Timeout.Duration,
				InsecureSkipVerify: !cfg.VerifyTLS,
			})
		},
	}
}

// RunSearch serves one tosfx or tosfxevents invocation over the host protocol.
// Params: ctx controls lifecycle; name command name; rt invocation inputs.
// Returns: error already reported to the host, or setup failure.
func RunSearch(ctx context.Context, name string, rt Runtime) error {
	return runSearchWithDeps(ctx, name, rt, defaultRunDeps())
}

// RunSetupList prints the current setup settings as key=value lines.
// Params: ctx controls lifecycle; rt setup inputs.
// Returns: error when settings cannot be read.
func RunSetupList(ctx context.Context, rt SetupRuntime) error {
	return runSetupListWithDeps(ctx, rt, defaultRunDeps())
}

// RunSetupEdit validates and stores setup settings.
// Params: ctx controls lifecycle; rt setup inputs; args submitted key/value pairs.
// Returns: *setup.ArgValidationError or storage error.
func RunSetupEdit(ctx context.Context, rt SetupRuntime, args map[string]string) error {
	return runSetupEditWithDeps(ctx, rt, args, defaultRunDeps())
}

func runSearchWithDeps(ctx context.Context, name string, rt Runtime, deps runDeps) error {
	var (
		spec        options.Command
		commandType string
	)
	switch name {
	case CommandDatapoints:
		spec, commandType = options.Datapoints, protocol.TypeStreaming
	case CommandEvents:
		spec, commandType = options.Events, protocol.TypeEvents
	default:
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := deps.loadConfig(rt.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLogger, err := deps.newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()
	logger = logger.With(slog.String("command", name))

	factory := func(ctx context.Context, inv protocol.Invocation) (command.Transformer, error) {
		return buildTransformer(ctx, spec, inv, rt, cfg, logger, deps)
	}

	switch strings.ToLower(strings.TrimSpace(rt.Protocol)) {
	case ProtocolV1:
		server := &protocol.V1Server{Command: name, Args: rt.Args, Factory: factory, Logger: logger}
		return server.Serve(ctx, rt.Stdin, rt.Stdout)
	case "", ProtocolV2:
		server := &protocol.V2Server{Type: commandType, Factory: factory, Logger: logger}
		return server.Serve(ctx, rt.Stdin, rt.Stdout)
	default:
		return fmt.Errorf("unsupported protocol %q", rt.Protocol)
	}
}

// buildTransformer resolves options for one invocation and wires the command.
// Params: ctx lookup lifecycle; spec option surface; inv host context; rt process inputs; cfg settings; logger; deps factories.
// Returns: transformer or option/validation error.
func buildTransformer(
	ctx context.Context,
	spec options.Command,
	inv protocol.Invocation,
	rt Runtime,
	cfg *config.Config,
	logger *slog.Logger,
	deps runDeps,
) (command.Transformer, error) {
	args, err := options.Parse(spec, inv.Args)
	if err != nil {
		return nil, err
	}

	var sources []options.Source
	sessionKey := firstNonEmpty(inv.SessionKey, rt.SessionKey)
	if sessionKey != "" {
		client, err := deps.newSplunkd(cfg.Splunkd, firstNonEmpty(inv.SplunkdURI, cfg.Splunkd.URI), sessionKey)
		if err != nil {
			logger.Warn("splunkd client unavailable", slog.String("error", err.Error()))
		} else {
			sources = append(sources, options.CredentialSource(client, options.EventsCredential, options.SetupCredential))
			if spec.Name == CommandEvents {
				sources = append(sources, options.CollectionSource(client, options.IngestConfigCollection))
			}
		}
	}

	stanza, err := conf.NewStore(cfg.Conf.AppDir, confName).Stanza(conf.SetupStanza)
	if err != nil {
		logger.Warn("read sfx.conf", slog.String("error", err.Error()))
	}
	sources = append(sources, options.StanzaSource(stanza), options.SettingsSource(cfg.Ingest))

	resolved := options.Resolve(ctx, spec, args, options.NewResolver(logger, sources...))

	encoder, err := payload.NewEncoder(cfg.Ingest.Format)
	if err != nil {
		return nil, err
	}
	poster, err := deps.newPoster(cfg.Ingest, rt.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("init sender: %w", err)
	}

	settings := command.Settings{
		Options:    resolved,
		Encoder:    encoder,
		Classifier: classify.New(cfg.Dimensions.Exclude...),
		Poster:     poster,
		Logger:     logger,
	}

	logger.Info(
		"command started",
		slog.String("target", resolved.Target()),
		slog.String("format", cfg.Ingest.Format),
		slog.Bool("debug", resolved.Debug),
		slog.Bool("dry_run", resolved.DryRun),
	)

	if spec.Name == CommandEvents {
		return command.NewEventCommand(settings), nil
	}
	return command.NewDatapointCommand(settings), nil
}

func runSetupListWithDeps(ctx context.Context, rt SetupRuntime, deps runDeps) error {
	handler, closeFn, err := buildSetupHandler(rt, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	stanza, err := handler.List(ctx)
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}
	if _, err := io.WriteString(rt.Stdout, setup.Format(stanza)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func runSetupEditWithDeps(ctx context.Context, rt SetupRuntime, args map[string]string, deps runDeps) error {
	handler, closeFn, err := buildSetupHandler(rt, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	return handler.Edit(ctx, args)
}

// buildSetupHandler loads settings and connects to splunkd with the caller's session.
// Params: rt setup inputs; deps factories.
// Returns: handler, logger close func, or setup error.
func buildSetupHandler(rt SetupRuntime, deps runDeps) (setup.ConfigHandler, func(), error) {
	if strings.TrimSpace(rt.SessionKey) == "" {
		return nil, nil, fmt.Errorf("splunkd session key is required")
	}

	cfg, err := deps.loadConfig(rt.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, closeLogger, err := deps.newLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	client, err := deps.newSplunkd(cfg.Splunkd, firstNonEmpty(rt.SplunkdURI, cfg.Splunkd.URI), rt.SessionKey)
	if err != nil {
		closeLogger()
		return nil, nil, fmt.Errorf("init splunkd client: %w", err)
	}

	store := conf.NewStore(cfg.Conf.AppDir, confName)
	return setup.NewHandler(store, client, logger.With(slog.String("handler", "setup"))), closeLogger, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
