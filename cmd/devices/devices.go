// Package devices implements the peekapi devices command.
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/audiocore/sources/malgo"
)

// Command creates a new cobra.Command to list loopback capable devices.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List output devices available for loopback capture",
		Long:  "Print the output devices peekapi can capture from. Use a name with --device or record.device.",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgo.EnumeratePlaybackDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}

	return cmd
}

func printDevices(out io.Writer, devices []audiocore.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No loopback capable output devices found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tDEFAULT\tID")
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, d.Name, def, d.ID)
	}
	return w.Flush()
}
