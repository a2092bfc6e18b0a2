package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizbank/internal/bank"
	"github.com/pavelanni/quizbank/internal/handler"
	appI18n "github.com/pavelanni/quizbank/internal/i18n"
	"github.com/pavelanni/quizbank/internal/importer"
	"github.com/pavelanni/quizbank/internal/model"
	"github.com/pavelanni/quizbank/internal/quiz"
	"github.com/pavelanni/quizbank/internal/render"
	"github.com/pavelanni/quizbank/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizbank",
		Short: "Question bank: import quizzes, build QTI packages and printable documents",
		// No RunE: a bare invocation prints help.
	}
	root.AddCommand(
		importCmd(),
		formatsCmd(),
		validateCmd(),
		buildCmd(),
		indexCmd(),
		listCmd(),
		serveCmd(),
	)
	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP preview and export server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizbank.db", "SQLite index path")
	f.StringP("bank", "b", "bank", "Bank directory")
	f.StringP("lang", "l", appI18n.DefaultLang, "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for the JSON API (empty disables CORS)")
	f.Int64("seed", quiz.DefaultSeed, "Sampling seed for quizzes without their own")
	f.Bool("no-pandoc", false, "Skip pandoc and show markup as is")
	f.Int("cache-size", render.DefaultCacheSize, "Rendered fragment cache entries")
	f.String("topic", "", "Default topic for API imports (default: the GIFT title, else \"Imported\")")
	f.Int("points", 1, "Default points for API imports")
	addLogFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizbank")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizbank")
	v.AddConfigPath("/etc/quizbank")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// converter returns the render bridge selected by --no-pandoc and
// --cache-size. The returned func releases the cache.
func converter(v *viper.Viper) (render.Converter, func()) {
	if v.GetBool("no-pandoc") {
		return render.Passthrough{}, func() {}
	}
	p := render.NewPandoc()
	c := render.NewCache(p, p.Options(), v.GetInt("cache-size"))
	return c, c.Purge
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bankDir := v.GetString("bank")
	b, err := bank.Load(bankDir)
	if err != nil {
		return fmt.Errorf("load bank: %w", err)
	}
	if err := reindex(db, b, bankDir); err != nil {
		return err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	conv, release := converter(v)
	defer release()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, b, importer.NewRegistry(conv), conv, handler.Config{
		BasePath: basePath,
		Seed:     v.GetInt64("seed"),
		ImportOptions: importer.Options{
			DefaultPoints: v.GetInt("points"),
			Topic:         v.GetString("topic"),
			Difficulty:    model.DifficultyEasy,
			Author:        "Unknown",
			License:       "CC-BY-4.0",
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{handler.SkippedHeader, "Content-Disposition"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"bank", bankDir,
		"items", b.Len(),
		"lang", lang,
		"base_path", basePath,
		"pandoc", !v.GetBool("no-pandoc"),
	)
	return http.ListenAndServe(addr, r)
}
