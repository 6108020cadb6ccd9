// Command simulate talks to the conversation engine from a terminal, backed by
// in-memory storage.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-concierge/internal/app/bootstrap"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/http/handlers"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/storage/memory"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type options struct {
	phone    string
	settings string
	now      string
	debug    bool
	logLevel string
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "simulate [message]",
		Short: "Chat with the clinic assistant locally",
		Long: `Runs conversation turns against in-memory storage.

With a message argument a single turn is executed; otherwise lines are read
from stdin until EOF or "sair".`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := buildSimulator(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return turn(cmd.Context(), sim, opts, strings.Join(args, " "), cmd.OutOrStdout())
			}
			return repl(cmd.Context(), sim, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.phone, "phone", "+5511999990000", "customer phone number")
	cmd.Flags().StringVar(&opts.settings, "settings", os.Getenv("CLINIC_SETTINGS_FILE"), "clinic settings YAML file")
	cmd.Flags().StringVar(&opts.now, "now", "", "freeze the clock, e.g. 2028-07-10T09:00 (clinic time)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "print intent, state and resolver details")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "error", "log level")
	return cmd
}

func buildSimulator(ctx context.Context, opts options) (handlers.Simulator, error) {
	logger := logging.NewText(os.Stderr, opts.logLevel)
	settings, err := clinic.LoadFile(opts.settings)
	if err != nil {
		return nil, err
	}
	provider, err := clinic.NewStaticProvider(settings)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.now != "" {
		frozen, err := time.ParseInLocation("2006-01-02T15:04", opts.now, settings.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid --now: %w", err)
		}
		now = func() time.Time { return frozen }
	}

	cfg := appconfig.Load()
	cfg.ClinicSettingsFile = opts.settings
	store := memory.New(memory.WithClock(now))
	contexts := convctx.New(convctx.NewMemoryBackend(convctx.WithMemoryClock(now)), logger, convctx.WithClock(now), convctx.WithTTL(cfg.ContextTTL))
	engine, err := bootstrap.BuildEngine(ctx, cfg, bootstrap.EngineDeps{
		Store:    store,
		Contexts: contexts,
		Settings: provider,
		Sender:   messaging.NewLogSender(logger),
		Now:      now,
	}, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func turn(ctx context.Context, sim handlers.Simulator, opts options, text string, out io.Writer) error {
	res, err := sim.Simulate(ctx, opts.phone, text)
	if err != nil {
		return err
	}
	if res.Response != "" {
		fmt.Fprintf(out, "assistente> %s\n", res.Response)
	} else {
		fmt.Fprintln(out, "assistente> (sem resposta)")
	}
	if opts.debug {
		debug, _ := json.Marshal(res.Debug)
		fmt.Fprintf(out, "  [%s %d%% %s] %s\n", res.Intent, res.Confidence, res.State, debug)
	}
	return nil
}

func repl(ctx context.Context, sim handlers.Simulator, opts options, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "você> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "sair") {
			return nil
		}
		if line != "" {
			if err := turn(ctx, sim, opts, line, out); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "você> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
