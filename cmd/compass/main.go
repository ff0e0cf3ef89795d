package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/compass/internal/cache"
	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/config"
	"github.com/everstacklabs/compass/internal/diff"
	"github.com/everstacklabs/compass/internal/discover"
	"github.com/everstacklabs/compass/internal/httpclient"
	"github.com/everstacklabs/compass/internal/pipeline"
	"github.com/everstacklabs/compass/internal/resolve"
	"github.com/everstacklabs/compass/internal/server"
	"github.com/everstacklabs/compass/internal/source"
	"github.com/everstacklabs/compass/internal/validate"

	fileSource "github.com/everstacklabs/compass/internal/source/file"
	keystoneSource "github.com/everstacklabs/compass/internal/source/keystone"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "compass",
		Short:         "OpenStack service catalog resolver",
		Long:          "Resolves endpoint URLs from a Keystone service catalog, discovers API versions, and tracks catalog drift.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./compass.yaml)")

	rootCmd.AddCommand(
		resolveCmd(),
		endpointsCmd(),
		catalogCmd(),
		versionsCmd(),
		validateCmd(),
		diffCmd(),
		snapshotCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(pipeline.ExitCodeFor(err))
	}
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the URL of the one endpoint matching the query",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			q, err := queryFromFlags(cmd, env.cfg)
			if err != nil {
				return err
			}
			cat, err := env.src.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			url, err := env.resolver.URLFor(cat, q)
			if err != nil {
				var amb *resolve.AmbiguousEndpointsError
				if errors.As(err, &amb) {
					printEndpoints(os.Stderr, amb.Candidates)
				}
				return err
			}
			fmt.Println(url)
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func endpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List every endpoint matching the query",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			q, err := queryFromFlags(cmd, env.cfg)
			if err != nil {
				return err
			}
			cat, err := env.src.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			eps, err := env.resolver.EndpointsFor(cat, q)
			if err != nil {
				return err
			}
			printEndpoints(os.Stdout, eps)
			fmt.Printf("\nTotal: %d endpoints\n", len(eps))
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Summarize the current catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			cat, err := env.src.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(catalog.BuildManifest(cat, time.Now()))
		},
	}
	addSourceFlags(cmd)
	return cmd
}

func versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Discover the API versions behind a service endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			q, err := queryFromFlags(cmd, env.cfg)
			if err != nil {
				return err
			}
			cat, err := env.src.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			url, err := env.resolver.URLFor(cat, q)
			if err != nil {
				return err
			}

			hacks, err := discover.NewVersionHacks(env.cfg.VersionHacks)
			if err != nil {
				return fmt.Errorf("loading version hacks: %w", err)
			}
			var headers map[string]string
			if id := cat.Token().ID; id != "" {
				headers = map[string]string{"X-Auth-Token": id}
			}

			d := discover.NewDiscoverer(env.client, hacks)
			disc, err := d.DiscoverService(cmd.Context(), q.ServiceType, url, headers)
			if err != nil {
				return err
			}

			if required, _ := cmd.Flags().GetString("require"); required != "" {
				data, err := disc.DataForWith(required, env.cfg.Discovery)
				if err != nil {
					return err
				}
				fmt.Println(data.URL)
				return nil
			}

			for _, v := range disc.VersionData(env.cfg.Discovery) {
				fmt.Printf("%-10s %-12s %s\n", v.Version, v.RawStatus, v.URL)
			}
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().String("require", "", "Print the URL of the newest version compatible with this one")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint a catalog document (CI check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cat *catalog.ServiceCatalog
			if path, _ := cmd.Flags().GetString("catalog-file"); path != "" {
				c, err := catalog.Load(path)
				if err != nil {
					return fmt.Errorf("loading catalog: %w", err)
				}
				cat = c
			} else {
				env, err := setup(cmd)
				if err != nil {
					return err
				}
				if cat, err = env.src.Fetch(cmd.Context()); err != nil {
					return err
				}
			}

			result := validate.ValidateCatalog(cat)
			fmt.Println(validate.FormatResult(result))

			if result.HasErrors() {
				return fmt.Errorf("catalog has %d errors", len(result.Errors()))
			}
			return nil
		},
	}

	cmd.Flags().String("catalog-file", "", "Catalog document to lint (default: fetch from the configured source)")

	return cmd
}

func diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [OLD NEW]",
		Short: "Compare two catalog documents, or the live catalog with the snapshot",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("diff takes no arguments or OLD NEW, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var cs *diff.ChangeSet
			if len(args) == 2 {
				prev, err := catalog.Load(args[0])
				if err != nil {
					return err
				}
				next, err := catalog.Load(args[1])
				if err != nil {
					return err
				}
				cs = diff.Compute(prev, next)
			} else {
				env, err := setup(cmd)
				if err != nil {
					return err
				}
				if cs, err = pipeline.New(env.cfg, env.src).Diff(cmd.Context()); err != nil {
					return err
				}
			}

			fmt.Println(diff.RenderDiffSummary(cs))
			if cs.HasChanges() {
				os.Exit(pipeline.ExitChanges)
			}
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Full pipeline: fetch → validate → diff → write → PR",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				env.cfg.Snapshot.DryRun = true
			}

			r, err := pipeline.New(env.cfg, env.src).Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			switch {
			case r.Skipped:
				slog.Info("snapshot skipped", "reason", r.SkipReason)
			case r.PRNumber > 0:
				slog.Info("PR created", "pr", r.PRNumber, "draft", r.PRDraft)
			default:
				fmt.Println(diff.RenderDiffSummary(r.ChangeSet))
				slog.Info("snapshot complete", "version", r.Version, "files", len(r.Written))
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show what would change without writing")
	addSourceFlags(cmd)

	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve endpoint lookups over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			addr := env.cfg.Serve.Addr
			if a, _ := cmd.Flags().GetString("addr"); a != "" {
				addr = a
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := server.New(env.src, env.resolver, server.Options{
				RefreshInterval: config.Duration(env.cfg.Serve.RefreshInterval, 15*time.Minute),
				StaleDuration:   config.Duration(env.cfg.Serve.StaleDuration, catalog.DefaultStaleDuration),
			})
			if err := s.Refresh(ctx); err != nil {
				return err
			}
			go s.Run(ctx)

			return s.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: from config)")
	addSourceFlags(cmd)

	return cmd
}

type environment struct {
	cfg      *config.Config
	client   *httpclient.Client
	src      source.Source
	resolver *resolve.Resolver
}

// setup loads config, installs the logger and wires the configured source.
func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	if f := cmd.Flags().Lookup("catalog-file"); f != nil && f.Changed {
		cfg.Source = "file"
		cfg.CatalogFile = f.Value.String()
	}

	client := newClient(cfg)
	src, err := configureSource(cfg, client)
	if err != nil {
		return nil, err
	}

	return &environment{
		cfg:    cfg,
		client: client,
		src:    src,
		resolver: resolve.New(resolve.Options{
			DefaultInterface:    cfg.Interface,
			ServiceNameFallback: cfg.ServiceNameFallback,
		}),
	}, nil
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func newClient(cfg *config.Config) *httpclient.Client {
	// Set up cache
	var fileCache *cache.FileCache
	if !cfg.NoCache {
		fc, err := cache.New(cfg.CacheDir, config.Duration(cfg.CacheTTL, time.Hour))
		if err != nil {
			slog.Warn("failed to create cache, continuing without", "error", err)
		} else {
			fileCache = fc
		}
	}

	opts := []httpclient.Option{
		httpclient.WithRateLimit(cfg.RateLimit),
		httpclient.WithTimeout(config.Duration(cfg.Timeout, 30*time.Second)),
	}
	if fileCache != nil {
		opts = append(opts, httpclient.WithCache(fileCache))
	}
	if cfg.NoCache {
		opts = append(opts, httpclient.WithNoCache())
	}
	return httpclient.New(opts...)
}

func configureSource(cfg *config.Config, client *httpclient.Client) (source.Source, error) {
	src, err := source.Get(cfg.Source)
	if err != nil {
		return nil, err
	}

	switch s := src.(type) {
	case *fileSource.File:
		if cfg.CatalogFile == "" {
			return nil, fmt.Errorf("source file requires catalog_file")
		}
		s.Configure(cfg.CatalogFile)
	case *keystoneSource.Keystone:
		s.Configure(cfg.Auth, client)
	}
	return src, nil
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "Service type (compute, identity, volumev2, ...)")
	cmd.Flags().String("name", "", "Service name")
	cmd.Flags().String("region", "", "Region (default: from config)")
	cmd.Flags().String("interface", "", "Interface: public, internal or admin (default: from config)")
	cmd.Flags().StringArray("filter", nil, "Endpoint attribute filter key:value, repeatable")
	_ = cmd.MarkFlagRequired("type")
	addSourceFlags(cmd)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("catalog-file", "", "Read the catalog from this document instead of the configured source")
}

// queryFromFlags builds the query from flags. The configured interface is
// the resolver default; the configured region applies only when neither
// --region nor a region filter was given.
func queryFromFlags(cmd *cobra.Command, cfg *config.Config) (resolve.Query, error) {
	flags := cmd.Flags()
	var q resolve.Query
	q.ServiceType, _ = flags.GetString("type")
	q.ServiceName, _ = flags.GetString("name")
	q.Region, _ = flags.GetString("region")
	q.Interface, _ = flags.GetString("interface")

	pairs, _ := flags.GetStringArray("filter")
	filters, err := resolve.ParseFilters(pairs)
	if err != nil {
		return q, err
	}
	q.Filters = filters

	if q.Region == "" && filters["region"] == "" && filters["region_name"] == "" {
		q.Region = cfg.Region
	}
	return q, nil
}

func printEndpoints(w *os.File, eps []catalog.Endpoint) {
	for _, ep := range eps {
		fmt.Fprintf(w, "%-10s %-14s %-12s %s\n", ep.Interface, orDash(ep.Region), orDash(ep.TenantID), ep.URL)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
