package cli

import (
	"fmt"
	"io"

	"branchwarden/internal/flags"
	"branchwarden/internal/policy"
	_ "branchwarden/internal/policy/kinds"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newKindsCommand() *cobra.Command {
	kindsCmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the policy kinds definitions can use",
		Long: `List the branch policy kinds this build understands.

A kind maps a logical name used in definition documents (for example
MinimumReviewers) to an Azure DevOps policy type and its settings.

Examples:
  # List all kinds
  branchwarden kinds list

  # Show the settings of one kind
  branchwarden kinds show MinimumReviewers
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var quiet bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available policy kinds",
		Long: `List all policy kinds registered in this build, sorted by name.

Output:
  A vertical list of kinds:
    ----------------------------------------
    KIND: {NAME}
    ----------------------------------------
    {DISPLAY NAME} ({TYPE ID})
    {DESCRIPTION}
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range policy.Kinds() {
				if quiet {
					fmt.Fprintln(cmd.OutOrStdout(), k.Name())
				} else {
					printKind(cmd.OutOrStdout(), k)
				}
			}
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&quiet, flags.FlagQuiet, "q", false, "Only print kind names")

	showCmd := &cobra.Command{
		Use:   "show [kind]",
		Short: "Show the settings of a policy kind",
		Long: `Show a policy kind by logical name or Azure DevOps display name.

Examples:
  branchwarden kinds show MinimumReviewers
  branchwarden kinds show "Require a merge strategy"
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := policy.LookupKind(args[0])
			if !ok {
				return fmt.Errorf("policy kind not found: %s", args[0])
			}
			printKind(cmd.OutOrStdout(), k)
			return nil
		},
	}

	kindsCmd.AddCommand(listCmd, showCmd)
	return kindsCmd
}

func printKind(w io.Writer, k policy.Kind) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "KIND: %s\n", k.Name())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "%s (%s)\n", k.DisplayName(), k.TypeID())
	fmt.Fprintln(w, k.Description())

	if fields := k.Fields(); len(fields) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Settings:")
		for _, f := range fields {
			def := f.Default
			if def == "" {
				def = "\"\""
			}
			fmt.Fprintf(w, "  %s\n", f.Name)
			fmt.Fprintf(w, "    Description: %s\n", f.Description)
			fmt.Fprintf(w, "    Default:     %s\n", def)
		}
	}
	fmt.Fprintln(w)
}
