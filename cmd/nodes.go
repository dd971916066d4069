package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/hwinterop/pkg/linuxav/drm"
)

// CreateNodesCmd creates the nodes command.
func CreateNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List DRM render nodes and their kernel drivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nodes, err := drm.FindRenderNodes()
			if err != nil {
				return err
			}
			PrintNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	}
}

// PrintNodes writes nodes as a table.
func PrintNodes(w io.Writer, nodes []drm.RenderNode) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No render nodes found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tPATH\tDRIVER\tVENDOR")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Path, orDash(n.Driver), orDash(n.Vendor))
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
