// promptctl renders, inspects and exercises prompts stored in the prompt
// service from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"promptkit/internal/cache"
	"promptkit/internal/config"
	"promptkit/internal/export"
	"promptkit/internal/llm"
	"promptkit/pkg/api"
	"promptkit/pkg/prompt"
	"promptkit/pkg/template"
	"promptkit/pkg/tokenizer"
	"promptkit/pkg/trace"
)

type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  prompt.Store
	tracer trace.Tracer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "promptctl",
		Short:         "Work with versioned prompts and traced generations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	root.AddCommand(
		newRenderCmd(a),
		newVersionsCmd(a),
		newDiffCmd(a),
		newChatCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := zerolog.New(os.Stderr)
	if cfg.Log.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	a.log = out.Level(level).With().Timestamp().Logger()

	opts := []api.Option{api.WithClientLogger(a.log)}
	if cfg.PromptService.APIKey != "" {
		opts = append(opts, api.WithAPIKey(cfg.PromptService.APIKey))
	}
	if cfg.Redis.Addr != "" {
		c, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.log.Warn().Err(err).Msg("redis unavailable, version caching disabled")
		} else {
			ttl := time.Duration(cfg.PromptService.CacheTTL) * time.Second
			opts = append(opts, api.WithCache(c, ttl))
		}
	}
	a.store = api.NewClient(cfg.PromptService.BaseURL, opts...)

	tracerOpts := []trace.TracerOption{
		trace.WithLogger(a.log),
		trace.WithSink(trace.NewLogSink(a.log)),
	}
	if cfg.Export.CollectorURL != "" && cfg.Redis.Addr != "" {
		tracerOpts = append(tracerOpts, trace.WithSink(export.NewQueueSink(cfg.Redis)))
	}
	a.tracer = trace.NewTracer(tracerOpts...)
	return nil
}

func (a *app) provider(name string) (llm.Provider, error) {
	registry := llm.NewRegistry(a.cfg.LLM.DefaultProvider)
	if a.cfg.LLM.OpenAIKey != "" {
		registry.Register(llm.NewTracedProvider(
			llm.NewOpenAIProvider(a.cfg.LLM.OpenAIKey), a.tracer,
			trace.WithTokenCounter(tokenizer.CountTokens),
		))
	}
	if a.cfg.LLM.AnthropicKey != "" {
		registry.Register(llm.NewTracedProvider(
			llm.NewAnthropicProvider(a.cfg.LLM.AnthropicKey), a.tracer,
			trace.WithTokenCounter(tokenizer.CountTokens),
		))
	}
	return registry.Get(name)
}

// parseVars turns repeated key=value flags into template variables.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

func newRenderCmd(a *app) *cobra.Command {
	var varPairs []string
	var commit string

	cmd := &cobra.Command{
		Use:   "render <prompt-id>",
		Short: "Render a text prompt with variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := parseVars(varPairs)
			if err != nil {
				return err
			}
			p, err := prompt.Get(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}

			var rendered string
			if commit != "" {
				v, err := p.GetVersion(cmd.Context(), commit)
				if err != nil {
					return err
				}
				if v == nil {
					return fmt.Errorf("no version with commit %q", commit)
				}
				rendered, err = v.Format(vars)
				if err != nil {
					return err
				}
			} else {
				rendered, err = p.Format(vars)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&varPairs, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&commit, "commit", "", "render a specific version instead of the current one")
	return cmd
}

func newVersionsCmd(a *app) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "versions <prompt-id>",
		Short: "List a prompt's versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prompt.Get(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			versions, err := p.GetVersions(cmd.Context(), prompt.ListVersionsOptions{Search: search})
			if err != nil {
				return err
			}
			sort.SliceStable(versions, func(i, j int) bool {
				ti, tj := versions[i].CreatedAt(), versions[j].CreatedAt()
				if ti == nil || tj == nil {
					return tj == nil && ti != nil
				}
				return ti.After(*tj)
			})
			for _, v := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", v.VersionAge(), v.VersionInfo())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter versions by change description")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <prompt-id> <commit> [other-commit]",
		Short: "Diff the current version against another, or two versions",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prompt.Get(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}

			current, err := p.GetVersion(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("no version with commit %q", args[1])
			}

			otherCommit := p.Commit()
			if len(args) == 3 {
				otherCommit = args[2]
			}
			other, err := p.GetVersion(cmd.Context(), otherCommit)
			if err != nil {
				return err
			}
			if other == nil {
				return fmt.Errorf("no version with commit %q", otherCommit)
			}

			diff, err := current.CompareTo(other)
			if err != nil {
				return err
			}
			if diff == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "versions are identical")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	}
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	var (
		varPairs     []string
		providerName string
		model        string
		stream       bool
		noVision     bool
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt-id>",
		Short: "Render a chat prompt and send it to a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateProviders(); err != nil {
				return err
			}
			vars, err := parseVars(varPairs)
			if err != nil {
				return err
			}

			cp, err := prompt.GetChat(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			mods := template.Modalities{}
			if noVision {
				mods.Vision = template.Bool(false)
			}
			rendered, err := cp.Format(vars, mods)
			if err != nil {
				return err
			}

			provider, err := a.provider(providerName)
			if err != nil {
				return err
			}
			if model == "" {
				model = a.cfg.LLM.DefaultModel
			}
			req := llm.ChatRequest{
				Model:    model,
				Messages: llm.FromTemplateMessages(rendered),
			}

			if stream {
				chunks, err := provider.ChatStream(cmd.Context(), req)
				if err != nil {
					return err
				}
				for chunk := range chunks {
					if chunk.Error != nil {
						return chunk.Error
					}
					fmt.Fprint(cmd.OutOrStdout(), chunk.Content)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}

			resp, err := provider.Chat(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			a.log.Info().
				Str("model", resp.Model).
				Int("total_tokens", resp.TotalTokens).
				Float64("cost_usd", resp.CostUSD).
				Msg("generation finished")
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&varPairs, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&providerName, "provider", "", "provider name (defaults to LLM_DEFAULT_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "model name (defaults to LLM_DEFAULT_MODEL)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "render image parts as placeholder text")
	return cmd
}
