package s3installer

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

const (
	PlanStatusNew      = "new"
	PlanStatusExisting = "existing"
)

// RenderPlan writes the reconciliation result as a table, one row per
// declared prefix.
func RenderPlan(w io.Writer, result *Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Bucket", "Prefix", "Status", "Route", "Target")
	for _, br := range result.Buckets {
		for _, c := range br.Covered {
			if err := table.Append([]string{
				br.Bucket,
				c.Prefix,
				PlanStatusExisting,
				c.Route.Kind.String(),
				c.Route.TargetName(),
			}); err != nil {
				return err
			}
		}
		for _, prefix := range br.Uncovered {
			if err := table.Append([]string{
				br.Bucket,
				prefix,
				PlanStatusNew,
				"-",
				"-",
			}); err != nil {
				return err
			}
		}
	}
	return table.Render()
}
