package query

// Object types readable through XOG.
const (
	ObjectTypeProject         = "project"
	ObjectTypeOtherInvestment = "otherInvestment"
)

// ProjectOptions are the ordering and inclusion arguments of a project read.
type ProjectOptions struct {
	OrderBy1            string
	OrderBy2            string
	IncludeTasks        bool
	IncludeDependencies bool
	IncludeSubprojects  bool
	IncludeResources    bool
	IncludeBaselines    bool
	IncludeAllocations  bool
	IncludeEstimates    bool
	IncludeActuals      bool
	IncludeCustom       bool
	IncludeBurdening    bool
}

// DefaultProjectOptions orders by name then projectID and includes nothing extra.
func DefaultProjectOptions() ProjectOptions {
	return ProjectOptions{OrderBy1: "name", OrderBy2: "projectID"}
}

// Project builds a project read bundle.
func Project(opts ProjectOptions, filters ...Filter) Bundle {
	args := []Arg{
		{Name: "order_by_1", Value: orDefault(opts.OrderBy1, "name")},
		{Name: "order_by_2", Value: orDefault(opts.OrderBy2, "projectID")},
		{Name: "include_tasks", Value: opts.IncludeTasks},
		{Name: "include_dependencies", Value: opts.IncludeDependencies},
		{Name: "include_subprojects", Value: opts.IncludeSubprojects},
		{Name: "include_resources", Value: opts.IncludeResources},
		{Name: "include_baselines", Value: opts.IncludeBaselines},
		{Name: "include_allocations", Value: opts.IncludeAllocations},
		{Name: "include_estimates", Value: opts.IncludeEstimates},
		{Name: "include_actuals", Value: opts.IncludeActuals},
		{Name: "include_custom", Value: opts.IncludeCustom},
		{Name: "include_burdening", Value: opts.IncludeBurdening},
	}
	return readBundle(ObjectTypeProject, args, filters)
}

// OtherInvestmentOptions are the ordering and inclusion arguments of an
// other investment read.
type OtherInvestmentOptions struct {
	OrderBy1           string
	OrderBy2           string
	IncludeResources   bool
	IncludeTasks       bool
	IncludeAllocations bool
}

// DefaultOtherInvestmentOptions orders by name then objectID and includes nothing extra.
func DefaultOtherInvestmentOptions() OtherInvestmentOptions {
	return OtherInvestmentOptions{OrderBy1: "name", OrderBy2: "objectID"}
}

// OtherInvestment builds an other investment read bundle.
func OtherInvestment(opts OtherInvestmentOptions, filters ...Filter) Bundle {
	args := []Arg{
		{Name: "order_by_1", Value: orDefault(opts.OrderBy1, "name")},
		{Name: "order_by_2", Value: orDefault(opts.OrderBy2, "objectID")},
		{Name: "include_resources", Value: opts.IncludeResources},
		{Name: "include_tasks", Value: opts.IncludeTasks},
		{Name: "include_allocations", Value: opts.IncludeAllocations},
	}
	return readBundle(ObjectTypeOtherInvestment, args, filters)
}

// readBundle always carries exactly one query group, so it cannot fail validation.
func readBundle(objectType string, args []Arg, filters []Filter) Bundle {
	return Bundle{
		Header: Header{
			ObjectType:     objectType,
			Version:        DefaultVersion,
			Action:         DefaultAction,
			ExternalSource: DefaultExternalSource,
			Args:           args,
		},
		Queries: []Query{NewQuery(filters...)},
	}
}
