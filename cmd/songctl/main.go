package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"songapi/internal/config"
	"songapi/internal/domain"
	"songapi/internal/generation"
	"songapi/internal/infra"
	"songapi/internal/providers/acestep"
	"songapi/internal/providers/lyrics"
	"songapi/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		exitWithError(err)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "songctl",
		Usage: "Operate songapi from the command line",
		Commands: []*cli.Command{
			generateCmd(out),
			settingsCmd(out),
			systemCmd(out),
		},
	}
}

func generateCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Write lyrics for a prompt and render them to audio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "prompt",
				Aliases:  []string{"p"},
				Usage:    "what the song is about",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "tags",
				Usage: "comma separated style tags",
				Value: domain.DefaultTags,
			},
			&cli.StringFlag{
				Name:    "locale",
				Usage:   "lyric language (es or en)",
				Sources: cli.EnvVars("LYRICS_LOCALE"),
				Value:   lyrics.DefaultLocale,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "songctl").Logger()

			orchestrator := generation.New(generation.Options{
				Lyrics: lyrics.NewClient(lyrics.Options{
					BaseURL: cfg.LyricsBaseURL,
					Locale:  cfg.LyricsLocale,
					Logger:  &logger,
				}),
				Audio: acestep.NewClient(acestep.Options{
					BaseURL: cfg.AceStepBaseURL,
					Logger:  &logger,
				}),
				Budget:  acestep.PollBudget{MaxAttempts: cfg.PollMaxAttempts, Interval: cfg.PollInterval},
				Timeout: cfg.GenerationTimeout,
				Logger:  &logger,
			})

			result, err := orchestrator.Generate(ctx, domain.GenerationRequest{
				Prompt:   cmd.String("prompt"),
				Tags:     cmd.String("tags"),
				Locale:   lyrics.MatchLocale(cmd.String("locale")),
				ClientID: "songctl",
			})
			if err != nil {
				return err
			}
			return writeJSON(out, result)
		},
	}
}

func settingsCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Print the effective settings after env overrides",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format (yaml or toml)",
				Value: "yaml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			return writeSettings(out, effectiveSettings(cfg), cmd.String("format"))
		},
	}
}

func systemCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "system",
		Usage: "Print the host snapshot reported by /status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "disk",
				Usage: "mount point used for disk usage",
				Value: "/",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			collector := telemetry.NewCollector(telemetry.Options{DiskPath: cmd.String("disk")})
			snapshot, err := collector.Collect(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "partial snapshot:", err)
			}
			return writeJSON(out, snapshot)
		},
	}
}

func effectiveSettings(cfg *infra.Config) config.Settings {
	return config.Settings{API: config.APISettings{Creator: cfg.Creator, Limit: cfg.DailyLimit}}
}

func writeSettings(out io.Writer, s config.Settings, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(out).Encode(s)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
