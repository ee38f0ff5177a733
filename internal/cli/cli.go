// Package cli implements cloverctl, the automation trigger for consolidations.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/consolidation"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	routes "github.com/Ramsey-B/clover/pkg/routes/consolidation"
)

var validate = validator.New()

// ServiceFactory opens the engine for one command. closeFn releases whatever it started.
type ServiceFactory func(ctx context.Context) (svc routes.Service, closeFn func(), err error)

// AppFactory boots the engine against the configured store without running migrations.
func AppFactory(ctx context.Context) (routes.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, flush, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	a := app.New(cfg, logger, app.Options{Version: "cloverctl"})
	if err := a.Start(ctx); err != nil {
		flush()
		return nil, nil, err
	}
	return a.Engine, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(ctx)
		flush()
	}, nil
}

// NewRootCommand builds the cloverctl command tree.
func NewRootCommand(factory ServiceFactory) *cobra.Command {
	var actor string

	root := &cobra.Command{
		Use:           "cloverctl",
		Short:         "Find and consolidate duplicate resources",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # List duplicate groups
  $ cloverctl groups

  # Ask which resource of a group to keep
  $ cloverctl recommend core_healthcare_api internal_healthcare_api

  # Check then run a plan
  $ cloverctl validate -f plan.yaml
  $ cloverctl consolidate -f plan.yaml`,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&actor, "actor", os.Getenv("USER"), "identity recorded on consolidation runs")

	// withService opens the engine and runs fn with a cli-triggered context.
	withService := func(cmd *cobra.Command, fn func(ctx context.Context, svc routes.Service) (any, error)) error {
		ctx := appctx.SetTrigger(cmd.Context(), appctx.TriggerCLI)
		ctx = appctx.SetUserID(ctx, actor)

		svc, closeFn, err := factory(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		out, err := fn(ctx, svc)
		if out != nil {
			if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
				return werr
			}
		}
		return err
	}

	root.AddCommand(
		groupsCommand(withService),
		recommendCommand(withService),
		validateCommand(withService),
		consolidateCommand(withService),
	)
	return root
}

// Execute runs cloverctl against the configured store.
func Execute(ctx context.Context) error {
	return NewRootCommand(AppFactory).ExecuteContext(ctx)
}

type runFunc func(cmd *cobra.Command, fn func(ctx context.Context, svc routes.Service) (any, error)) error

func groupsCommand(with runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List resources that look like duplicates of each other",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return with(cmd, func(ctx context.Context, svc routes.Service) (any, error) {
				return svc.Discover(ctx)
			})
		},
	}
}

func recommendCommand(with runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <id> <id>...",
		Short: "Score candidates and propose which one to keep",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return with(cmd, func(ctx context.Context, svc routes.Service) (any, error) {
				return svc.Recommend(ctx, args)
			})
		},
	}
}

func validateCommand(with runFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report what a plan would lose without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := readPlan(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return with(cmd, func(ctx context.Context, svc routes.Service) (any, error) {
				result, err := svc.Validate(ctx, plan)
				if err != nil {
					return nil, err
				}
				if !result.SafeToRemove {
					return result, fmt.Errorf("plan is unsafe: %d unique child records would be lost", len(result.UniqueChildrenLost))
				}
				return result, nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (yaml or json), - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func consolidateCommand(with runFunc) *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Move child records onto the kept resource and delete the others",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := readPlan(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return with(cmd, func(ctx context.Context, svc routes.Service) (any, error) {
				result, err := svc.Execute(ctx, plan, force)
				var unsafe *consolidation.PlanUnsafeError
				if errors.As(err, &unsafe) {
					return unsafe.Result, fmt.Errorf("%w; rerun with --force to accept the loss", err)
				}
				if err != nil {
					return nil, err
				}
				if len(result.Errors) > 0 {
					return result, fmt.Errorf("consolidation finished with %d errors", len(result.Errors))
				}
				return result, nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (yaml or json), - for stdin")
	cmd.Flags().BoolVar(&force, "force", false, "remove resources even when unique child records would be lost")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readPlan decodes a plan file. JSON is valid YAML so one decoder covers both.
func readPlan(stdin io.Reader, file string) (models.ConsolidationPlan, error) {
	var (
		body []byte
		err  error
	)
	if file == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(file)
	}
	if err != nil {
		return models.ConsolidationPlan{}, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan models.ConsolidationPlan
	if err := yaml.Unmarshal(body, &plan); err != nil {
		return models.ConsolidationPlan{}, fmt.Errorf("failed to parse plan: %w", err)
	}
	plan.KeepID = strings.TrimSpace(plan.KeepID)
	if err := validate.Struct(plan); err != nil {
		return models.ConsolidationPlan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
