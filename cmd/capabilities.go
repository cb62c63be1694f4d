package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/gpionode/internal/board"
	"github.com/spf13/cobra"
)

// PinCapability is one row of the capabilities listing.
type PinCapability struct {
	Pin        int      `json:"pin"`
	Functions  []string `json:"functions"`
	Group      string   `json:"group,omitempty"`
	Role       string   `json:"role,omitempty"`
	PWMChannel *int     `json:"pwm_channel,omitempty"`
}

// Capabilities lists what every pin of table can do.
func Capabilities(table *board.Table) []PinCapability {
	out := make([]PinCapability, 0, len(table.Pins()))
	for _, pin := range table.Pins() {
		c := PinCapability{Pin: pin, Role: table.Role(pin)}
		for _, f := range table.EligibleFunctions(pin) {
			c.Functions = append(c.Functions, string(f))
		}
		c.Group, _ = table.BusGroup(pin)
		if ch, ok := table.PWMChannel(pin); ok {
			c.PWMChannel = &ch
		}
		out = append(out, c)
	}
	return out
}

// CreateCapabilitiesCmd creates the capabilities command.
func CreateCapabilitiesCmd() *cobra.Command {
	var model string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print the pin capability table",
		Long: "Lists every pin with the functions it may assume, its bus group and signal, " +
			"and the hardware PWM channel it is wired to.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if model == "" {
				model = board.DetectModel()
			}
			table := board.RaspberryPi(model)
			caps := Capabilities(table)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"model": table.Model(), "pins": caps})
			}

			rows := make([][]string, 0, len(caps))
			for _, c := range caps {
				channel := "-"
				if c.PWMChannel != nil {
					channel = strconv.Itoa(*c.PWMChannel)
				}
				rows = append(rows, []string{
					strconv.Itoa(c.Pin),
					strings.Join(c.Functions, ", "),
					dash(c.Group),
					dash(c.Role),
					channel,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Board: %s\n", dash(table.Model()))
			return renderTable(out, []string{"PIN", "FUNCTIONS", "GROUP", "SIGNAL", "PWM"}, rows)
		},
	}

	cmd.Flags().StringVar(&model, "board-model", "", "Board model, detected from the device tree when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
