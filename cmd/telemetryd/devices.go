package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/telemetryd/internal/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List configured devices",
	Long:  `Loads the device definition file, writing the built-in defaults when it is missing, and lists every device.`,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadApp(cmd)
	if err != nil {
		return err
	}

	registry, err := device.Load(cfg.Devices.Path, log.With("devices"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tCONNECTION")
	for _, d := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Type, formatConnection(d.Connection))
	}

	return w.Flush()
}

// formatConnection prints connection parameters in key order, hiding secrets.
func formatConnection(conn map[string]string) string {
	keys := make([]string, 0, len(conn))
	for k := range conn {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := conn[k]
		if strings.Contains(k, "key") || strings.Contains(k, "password") || strings.Contains(k, "token") {
			v = "***"
		}
		parts = append(parts, k+"="+v)
	}

	return strings.Join(parts, " ")
}
