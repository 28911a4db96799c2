package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSubjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     `subject "INS 12925/2022" | subject 12345678`,
		Short:   "Looks up the insolvency subject of a case reference or company ID",
		Args:    cobra.MinimumNArgs(1),
		Example: `  isir subject "INS 12925/2022"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApplication(loadConfig(), false)
			defer a.close()

			subjects, err := a.lookup.Lookup(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range subjects {
				fmt.Fprintf(out, "%s  %s\n", s.CaseReference, s.Name)
				if s.Status != "" {
					fmt.Fprintf(out, "    stav:   %s\n", s.Status)
				}
				if s.CompanyID != nil {
					fmt.Fprintf(out, "    IC:     %s\n", *s.CompanyID)
				}
				if s.Address != nil {
					fmt.Fprintf(out, "    adresa: %s\n", *s.Address)
				}
				if s.DetailURL != nil {
					fmt.Fprintf(out, "    %s\n", *s.DetailURL)
				}
			}
			return nil
		},
	}

	return cmd
}
