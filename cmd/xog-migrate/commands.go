package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/query"
	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/spf13/cobra"
)

// Project includes accepted by --include.
var projectIncludes = []string{
	"tasks", "dependencies", "subprojects", "resources", "baselines",
	"allocations", "estimates", "actuals", "custom", "burdening",
}

// Other investment includes accepted by --include.
var investmentIncludes = []string{"resources", "tasks", "allocations"}

// filterFlags are the record selection flags shared by object commands.
type filterFlags struct {
	ids          []string
	active       bool
	updatedAfter string
	includes     []string
}

func (f *filterFlags) register(cmd *cobra.Command, idColumn string, includes []string) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.ids, "id", nil, "select records by "+idColumn+" (repeatable)")
	flags.BoolVar(&f.active, "active", false, "select only active (or, with --active=false, inactive) records")
	flags.StringVar(&f.updatedAfter, "updated-after", "", "select records updated after this date (YYYY-MM-DD)")
	flags.StringSliceVar(&f.includes, "include", nil, "include sections: "+strings.Join(includes, ", "))
}

// filters builds the query filters from the flags that were set.
func (f *filterFlags) filters(cmd *cobra.Command, idColumn string) ([]query.Filter, error) {
	var filters []query.Filter

	switch len(f.ids) {
	case 0:
	case 1:
		filters = append(filters, query.Equals(idColumn, f.ids[0]))
	default:
		values := make([]any, len(f.ids))
		for i, id := range f.ids {
			values[i] = id
		}
		filters = append(filters, query.Any(idColumn, values...))
	}

	if cmd.Flags().Changed("active") {
		filters = append(filters, query.Equals("active", f.active))
	}

	if f.updatedAfter != "" {
		t, err := time.Parse("2006-01-02", f.updatedAfter)
		if err != nil {
			return nil, fmt.Errorf("--updated-after: %w", err)
		}
		filters = append(filters, query.After("lastUpdatedDate", xog.DateOf(t)))
	}

	return filters, nil
}

// include reports whether section was requested; unknown sections are an error.
func (f *filterFlags) include(allowed []string) (func(string) bool, error) {
	for _, inc := range f.includes {
		if !slices.Contains(allowed, inc) {
			return nil, fmt.Errorf("unknown --include %q (allowed: %s)", inc, strings.Join(allowed, ", "))
		}
	}
	return func(section string) bool {
		return slices.Contains(f.includes, section)
	}, nil
}

func newProjectsCmd(a *app) *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Migrate projects",
		Example: `  xog-migrate projects --id PRJ-001 --id PRJ-002 --include tasks,resources
  xog-migrate projects --active --updated-after 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters(cmd, "projectID")
			if err != nil {
				return err
			}
			has, err := f.include(projectIncludes)
			if err != nil {
				return err
			}

			opts := query.DefaultProjectOptions()
			opts.IncludeTasks = has("tasks")
			opts.IncludeDependencies = has("dependencies")
			opts.IncludeSubprojects = has("subprojects")
			opts.IncludeResources = has("resources")
			opts.IncludeBaselines = has("baselines")
			opts.IncludeAllocations = has("allocations")
			opts.IncludeEstimates = has("estimates")
			opts.IncludeActuals = has("actuals")
			opts.IncludeCustom = has("custom")
			opts.IncludeBurdening = has("burdening")

			return a.runMigration(cmd.Context(), cmd.OutOrStdout(), query.Project(opts, filters...))
		},
	}
	f.register(cmd, "projectID", projectIncludes)

	return cmd
}

func newInvestmentsCmd(a *app) *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:     "investments",
		Aliases: []string{"other-investments"},
		Short:   "Migrate other investments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters(cmd, "objectID")
			if err != nil {
				return err
			}
			has, err := f.include(investmentIncludes)
			if err != nil {
				return err
			}

			opts := query.DefaultOtherInvestmentOptions()
			opts.IncludeResources = has("resources")
			opts.IncludeTasks = has("tasks")
			opts.IncludeAllocations = has("allocations")

			return a.runMigration(cmd.Context(), cmd.OutOrStdout(), query.OtherInvestment(opts, filters...))
		},
	}
	f.register(cmd, "objectID", investmentIncludes)

	return cmd
}

func newLookupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "lookups CODE...",
		Short:   "Migrate lookups as a content pack",
		Example: "  xog-migrate lookups INV_TYPE PRJ_CATEGORY",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pack := query.NewPack(query.LookupCodes(args...))
			return a.runMigration(cmd.Context(), cmd.OutOrStdout(), pack)
		},
	}
}
