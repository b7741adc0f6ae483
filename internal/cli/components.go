package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/datacleaner/pkg/component"
)

func (a *app) newComponentsCommand() *cobra.Command {
	var kind string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "components",
		Short: "List the registered components",
		Long: `List the filters, transformers and analyzers available to jobs.

Examples:
  datacleaner components
  datacleaner components --kind analyzer -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []component.Kind{component.KindFilter, component.KindTransformer, component.KindAnalyzer}
			if kind != "" {
				k := component.Kind(strings.ToLower(kind))
				switch k {
				case component.KindFilter, component.KindTransformer, component.KindAnalyzer:
				default:
					return fmt.Errorf("unknown kind %q", kind)
				}
				kinds = []component.Kind{k}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tDISTRIBUTABLE\tDESCRIPTION")
			for _, k := range kinds {
				for _, d := range a.registry.Descriptors(k) {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", d.Kind, d.Name, d.Distributable(), d.Description)
					if verbose {
						writeDetails(w, d)
					}
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only list filter, transformer or analyzer components")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show categories and properties")
	return cmd
}

func writeDetails(w *tabwriter.Writer, d *component.Descriptor) {
	if len(d.Categories) > 0 {
		fmt.Fprintf(w, "\t  outcomes: %s\t\t\n", strings.Join(d.Categories, ", "))
	}
	for _, p := range d.Properties {
		line := fmt.Sprintf("  property %q (%s)", p.Name, p.Type)
		if p.Required {
			line += " required"
		}
		if len(p.Choices) > 0 {
			line += " one of " + strings.Join(p.Choices, ", ")
		}
		if p.Default != nil {
			line += fmt.Sprintf(" default %v", p.Default)
		}
		fmt.Fprintf(w, "\t%s\t\t\n", line)
	}
}
