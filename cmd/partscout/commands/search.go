package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/FranksOps/partscout/internal/filter"
	"github.com/FranksOps/partscout/internal/grid"
	"github.com/FranksOps/partscout/internal/search"
	"github.com/spf13/cobra"
)

var (
	vendorName  string
	category    string
	subcategory string
	partNumber  string
	params      string
	details     string
	maxResults  int
	xrefPath    []string
)

func init() {
	for _, c := range []*cobra.Command{mpnCmd, parametricCmd, xrefCmd} {
		c.Flags().StringVarP(&vendorName, "vendor", "v", "murata", "vendor to search")
		rootCmd.AddCommand(c)
	}
	parametricCmd.Flags().StringVar(&category, "category", "", "category name or path head")
	parametricCmd.Flags().StringVar(&subcategory, "subcategory", "", "subcategory name")
	parametricCmd.Flags().StringVar(&partNumber, "mpn", "", "part number scoping the category")
	parametricCmd.Flags().StringVar(&params, "params", "", `filters as a JSON object, e.g. '{"Capacitance":{"min":10,"max":100}}'`)
	parametricCmd.Flags().StringVar(&details, "details", "", "free-text details to classify into filters")
	parametricCmd.Flags().IntVar(&maxResults, "max", 0, "maximum results")
	xrefCmd.Flags().StringSliceVar(&xrefPath, "path", nil, "category path hints, e.g. Inductors")
}

var mpnCmd = &cobra.Command{
	Use:   "mpn <part-number>",
	Short: "Looks up a manufacturer part number.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		e, err := a.reg.Get(vendorName)
		if err != nil {
			return err
		}
		rows, err := e.SearchMPN(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRows(cmd.OutOrStdout(), rows)
	},
}

var parametricCmd = &cobra.Command{
	Use:   "parametric --category <name> [--params <json>] [--details <text>]",
	Short: "Searches a category with parametric filters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := search.ParametricRequest{
			Category:    category,
			Subcategory: subcategory,
			PartNumber:  partNumber,
			Details:     details,
			MaxResults:  maxResults,
		}
		if params != "" {
			set, err := filter.ParseSet([]byte(params))
			if err != nil {
				return err
			}
			req.Filters = set
		}

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		e, err := a.reg.Get(vendorName)
		if err != nil {
			return err
		}
		rows, err := e.SearchParametric(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printRows(cmd.OutOrStdout(), rows)
	},
}

var xrefCmd = &cobra.Command{
	Use:   "xref <competitor-part-number>",
	Short: "Finds the vendor's equivalents of a competitor part.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		e, err := a.reg.Get(vendorName)
		if err != nil {
			return err
		}
		out, err := e.SearchCrossRef(cmd.Context(), args[0], xrefPath)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, out)
		}
		fmt.Fprintf(w, "competitor (%d)\n", len(out.Competitor))
		if err := printRows(w, out.Competitor); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s (%d)\n", out.Vendor, len(out.Own))
		return printRows(w, out.Own)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRows writes rows as JSON with --json, otherwise as key: value blocks.
func printRows(w io.Writer, rows []grid.Row) error {
	if jsonOutput {
		if rows == nil {
			rows = []grid.Row{}
		}
		return writeJSON(w, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	for i, r := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "#%d\n", i+1)
		for _, f := range r.Fields() {
			fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Value)
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}
