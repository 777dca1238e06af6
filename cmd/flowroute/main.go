package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/config"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/gateway"
	"github.com/zen-systems/flowroute/pkg/orchestrator"
	"github.com/zen-systems/flowroute/pkg/router"
	"github.com/zen-systems/flowroute/pkg/server"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowroute",
		Short: "Query router that picks an LLM backend and capability tools per request",
		Long: `Flowroute classifies each query with a router model, runs the capability
	tools it selects, and answers with the backend best suited to the request.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to routing config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(backendsCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			eng, err := newEngine(cfg, false, orchestrator.WithMetrics(orchestrator.NewMetrics(reg)))
			if err != nil {
				return err
			}

			srv := server.New(eng.orch, eng.gateways, eng.caps,
				server.WithJWTSecret(cfg.JWTSecret),
				server.WithMaxUploadBytes(cfg.RoutingConfig.Document.MaxBytes),
				server.WithAllowedOrigins(origins...),
				server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default any)")
	return cmd
}

func askCmd() *cobra.Command {
	var fileFlag string
	var mockFlag bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Route a single query and print the response",
		Long: `Routes the query (and an optional --file attachment) through the router
	model, runs any selected tools and prints the consolidated response as JSON.

	Use --mock to run without provider keys against deterministic adapters.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			eng, err := newEngine(cfg, mockFlag)
			if err != nil {
				return err
			}

			q := orchestrator.Query{Identity: "cli"}
			if len(args) > 0 {
				q.Text = args[0]
			}
			if fileFlag != "" {
				data, err := os.ReadFile(fileFlag)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", fileFlag, err)
				}
				q.Document = data
				q.Filename = filepath.Base(fileFlag)
			}

			resp, err := eng.orch.RouteQuery(cmd.Context(), q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&fileFlag, "file", "", "attach a .pdf, .txt or .md document")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "use deterministic mock backends and tools")
	return cmd
}

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show configured backends and whether they are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			routing := cfg.RoutingConfig

			reg, _ := gateway.NewRegistryFromConfig(cfg, gateway.WithBuildLogger(func(string, ...any) {}))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tADAPTER\tMODEL\tAVAILABLE\tTRIGGERS")
			for _, name := range sortedKeys(routing.Backends) {
				bc := routing.Backends[name]
				available := reg != nil && reg.Has(name)
				if name == routing.DefaultBackend {
					name += " (default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", name, bc.Adapter, bc.Model, available, strings.Join(bc.Triggers, ", "))
			}

			fmt.Fprintln(w)
			fmt.Fprintf(w, "ROUTER\t%s\t%s\t-\t-\n", routing.RouterBackend.Adapter, routing.RouterBackend.Model)
			if aliases := routing.Aliases.ListAliases(); len(aliases) > 0 {
				fmt.Fprintln(w)
				for _, alias := range aliases {
					fmt.Fprintf(w, "ALIAS\t%s\t-> %s\t\t\n", alias, routing.Aliases.Resolve(alias))
				}
			}
			return w.Flush()
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show capability tools and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			reg, err := capability.NewRegistryFromConfig(cfg, func(string, ...any) {})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tCONFIGURED\tPARAMS\tDESCRIPTION")
			for _, st := range capability.Statuses(reg) {
				var params []string
				for _, p := range st.Spec.Params {
					if p.Required {
						params = append(params, p.Name+"*")
					} else {
						params = append(params, p.Name)
					}
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", st.Spec.Name, st.Configured, strings.Join(params, ", "), st.Spec.Description)
			}
			return w.Flush()
		},
	}
}

type engine struct {
	orch     *orchestrator.Orchestrator
	gateways *gateway.Registry
	caps     *capability.Registry
}

// newEngine wires the registries, classifier and orchestrator from config.
func newEngine(cfg *config.Config, mock bool, opts ...orchestrator.Option) (*engine, error) {
	var buildOpts []gateway.BuildOption
	if mock {
		buildOpts = append(buildOpts, gateway.WithMockAdapters())
	}

	gateways, err := gateway.NewRegistryFromConfig(cfg, buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create backends: %w", err)
	}

	routerBackend, err := gateway.NewRouterBackend(cfg, buildOpts...)
	if err != nil {
		log.Printf("[router] %v; requests will use the default backend", err)
	}

	var caps *capability.Registry
	if mock {
		caps, err = capability.NewRegistry(capability.MockProviders()...)
	} else {
		caps, err = capability.NewRegistryFromConfig(cfg, log.Printf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create capabilities: %w", err)
	}

	routing := cfg.RoutingConfig
	classifier := router.NewClassifier(routerBackend, gateways, caps.Specs(), routing)
	extractor := document.NewExtractor(document.WithMaxBytes(routing.Document.MaxBytes))

	orch, err := orchestrator.New(extractor, classifier, gateways, caps, routing, opts...)
	if err != nil {
		return nil, err
	}
	return &engine{orch: orch, gateways: gateways, caps: caps}, nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithRoutingFile(configFile)
	}
	return config.Load()
}

func sortedKeys(m map[string]config.BackendConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
