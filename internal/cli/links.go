package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewLinksCmd creates the links command
func NewLinksCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List the zone download URLs the account is entitled to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinks(cmd.Context(), *configPath, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runLinks(ctx context.Context, configPath string, out io.Writer) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	links, err := a.client.ListAvailableLinks(ctx)
	if err != nil {
		return err
	}

	for _, link := range links {
		fmt.Fprintln(out, link)
	}
	return nil
}
