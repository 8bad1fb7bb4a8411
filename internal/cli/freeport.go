// Package cli: freeport.go implements "pagenode-shell free-port".
//
// free-port hands dev scripts a loopback port to start the backend on by
// hand and then point the shell at it through PAGENODE_BACKEND_PORT:
//
//	eval "$(pagenode-shell free-port --env)"
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pagenode/pagenode-shell/internal/discovery"
	"github.com/pagenode/pagenode-shell/internal/model"
	"github.com/pagenode/pagenode-shell/internal/port"
)

// freePortFlags holds the flag values for the free-port command.
type freePortFlags struct {
	start uint16 // --start: first port of the search range
	end   uint16 // --end: last port of the search range
	env   bool   // --env: print as PAGENODE_BACKEND_PORT=<n>
	host  string // --host: interface to probe
}

// NewFreePortCommand creates the "free-port" cobra command.
func NewFreePortCommand() *cobra.Command {
	flags := &freePortFlags{}

	cmd := &cobra.Command{
		Use:   "free-port",
		Short: "Print a free local TCP port",
		Long: `Print a TCP port that is currently free on the loopback interface.

Without --start the operating system picks an ephemeral port, the same way
the backend picks the port it announces. With --start (and optionally --end)
the range is searched upward and the first free port is printed.

Examples:
  pagenode-shell free-port
  pagenode-shell free-port --start 8000 --end 8100
  pagenode-shell free-port --env`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runFreePort(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().Uint16Var(&flags.start, "start", 0, "First port to try (default: let the OS choose)")
	cmd.Flags().Uint16Var(&flags.end, "end", 0, "Last port to try (default: 65535)")
	cmd.Flags().BoolVar(&flags.env, "env", false, "Print as "+discovery.OverrideEnv+"=<port>")
	cmd.Flags().StringVar(&flags.host, "host", "127.0.0.1", "Interface to probe")

	return cmd
}

// runFreePort is the main logic function for the free-port command.
func runFreePort(out io.Writer, flags *freePortFlags) error {
	p, err := findFreePort(port.NewProbeOnHost(flags.host), flags.start, flags.end)
	if err != nil {
		return model.WrapCLIError(model.ExitPortAllocationFailed, "failed to find a free port", err)
	}

	switch {
	case IsJSONOutput():
		return printJSON(out, map[string]uint16{"port": p})
	case flags.env:
		_, err = fmt.Fprintf(out, "%s=%d\n", discovery.OverrideEnv, p)
	default:
		_, err = fmt.Fprintln(out, p)
	}
	return err
}

// findFreePort picks an ephemeral port when start is 0 and searches
// [start, end] otherwise. An end of 0 means the top of the port range.
func findFreePort(probe *port.Probe, start, end uint16) (uint16, error) {
	if start == 0 {
		if end != 0 {
			return 0, fmt.Errorf("--end requires --start")
		}
		return probe.FreePort()
	}
	if end == 0 {
		end = 65535
	}
	return probe.FindAvailablePort(start, end)
}
