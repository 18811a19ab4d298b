package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"calassist/internal/api"
	"calassist/internal/caldav"
	"calassist/internal/config"
	"calassist/internal/google"
	"calassist/internal/llm"
	"calassist/internal/models"
	"calassist/internal/repair"
	"calassist/internal/sgr"
	"calassist/internal/store"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calassist",
		Usage: "Turn free-text scheduling instructions into calendar events.",
		Commands: []*cli.Command{
			serveCommand(),
			suggestCommand(),
			authCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address. Overrides HTTP_ADDR."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			ctrl, st, err := buildController(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			addr := cfg.HTTPAddr
			if c.IsSet("addr") {
				addr = c.String("addr")
			}
			logger.Info("Starting HTTP API.", "addr", addr)
			return http.ListenAndServe(addr, api.NewRouter(logger, ctrl))
		},
	}
}

func suggestCommand() *cli.Command {
	return &cli.Command{
		Name:      "suggest",
		Usage:     "Suggest events for an instruction and print them as JSON.",
		ArgsUsage: "<instruction>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "timezone", Usage: "IANA timezone for the suggestion. Defaults to PROJECT_TIMEZONE."},
		},
		Action: func(c *cli.Context) error {
			instruction := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if instruction == "" {
				return fmt.Errorf("an instruction is required")
			}

			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			ctrl, st, err := buildController(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			resp := ctrl.Suggest(c.Context, models.SuggestRequest{
				Instruction: instruction,
				Timezone:    c.String("timezone"),
			})
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Google Calendar and store the API token.",
		Action: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.OAuthConfig(googleOptions(cfg))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')

			token, err := google.ExchangeCode(c.Context, oauthConfig, strings.TrimSpace(authCode))
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			st, err := store.Open(cfg.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := google.SaveToken(st, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "store", st.Path())
			return nil
		},
	}
}

// buildController wires the collaborators once at startup and hands them to
// the controller by reference.
func buildController(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*sgr.Controller, *store.Store, error) {
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}

	cal, err := newCalendar(ctx, logger, cfg, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	provider := llm.NewFromConfig(cfg, logger)
	normalizer := repair.New(logger, cfg.ProjectTimezone)
	return sgr.NewController(logger, provider, cal, normalizer), st, nil
}

func newCalendar(ctx context.Context, logger *slog.Logger, cfg *config.Config, st *store.Store) (sgr.Calendar, error) {
	if cfg.CalendarBackend == "caldav" {
		return caldav.NewClient(ctx, logger, caldav.Options{
			Endpoint:     cfg.CalDAVEndpoint,
			Username:     cfg.CalDAVUsername,
			Password:     cfg.CalDAVPassword,
			CalendarName: cfg.CalDAVCalendar,
		})
	}
	return google.NewClient(ctx, logger, st, googleOptions(cfg))
}

func googleOptions(cfg *config.Config) google.Options {
	return google.Options{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.GoogleRedirectURI,
		CredsJSON:    cfg.GoogleCredsJSON,
		TokenJSON:    cfg.GoogleTokenJSON,
		CalendarID:   cfg.GoogleCalendarID,
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
