package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/postqueue/pkg/postqueue"
	"github.com/randalmurphal/postqueue/pkg/postqueue/config"
	"github.com/randalmurphal/postqueue/pkg/postqueue/observability"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "postqueue",
		Short: "Durable outbound HTTP request queue",
		Long: `postqueue stores JSON POST requests in a local SQLite database and
delivers them when asked, keeping failed requests for the next run and
caching replies until they are taken.

Configuration is read from --config, or from the file named by
POSTQUEUE_CONFIG. YAML, JSON and TOML are supported.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $"+config.EnvConfigPath+")")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides database.path)")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "do not print queue events")

	root.AddCommand(
		newSendCmd(flags),
		newEnqueueCmd(flags),
		newProcessCmd(flags),
		newTakeCmd(flags),
		newPurgeCmd(flags),
		newCountCmd(flags),
		newPendingCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadSettings reads the config file and applies flag overrides.
func loadSettings(flags *globalFlags) (config.Settings, error) {
	settings, err := config.Load(flags.configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("loading config: %w", err)
	}
	if flags.dbPath != "" {
		settings.DatabasePath = flags.dbPath
	}
	return settings, nil
}

// openClient loads settings and opens a Client that prints events to out.
func openClient(flags *globalFlags, out io.Writer, extra ...postqueue.Option) (*postqueue.Client, config.Settings, error) {
	settings, err := loadSettings(flags)
	if err != nil {
		return nil, config.Settings{}, err
	}

	logger := observability.NewTextLogger(os.Stderr, settings.LogLevel)
	slog.SetDefault(logger)

	opts := []postqueue.Option{
		postqueue.WithSettings(settings),
		postqueue.WithLogger(logger),
	}
	if !flags.quiet {
		opts = append(opts, postqueue.WithEventCallback(newEventPrinter(out).print))
	}
	opts = append(opts, extra...)

	client, err := postqueue.Open(opts...)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return client, settings, nil
}

// eventPrinter writes events as colored lines. Events from background
// drains arrive on other goroutines.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{out: out}
}

func (p *eventPrinter) print(eventType, data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", eventColor(eventType).Sprintf("[%s]", eventType), data)
}

func eventColor(eventType string) *color.Color {
	switch {
	case strings.HasSuffix(eventType, "_FAILED"), strings.HasSuffix(eventType, "_DROPPED"):
		return color.New(color.FgRed)
	case strings.HasSuffix(eventType, "_NOT_FOUND"):
		return color.New(color.FgYellow)
	case strings.HasSuffix(eventType, "_SUCCESS"), strings.HasSuffix(eventType, "_COMPLETE"):
		return color.New(color.FgGreen)
	case strings.HasPrefix(eventType, "LIBRARY_"):
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgCyan)
	}
}
