package main

import (
	"fmt"
	"net/http"

	"github.com/Sternrassler/xog-migrate/internal/config"
	"github.com/Sternrassler/xog-migrate/pkg/client"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Log in to both endpoints and log out again",
		Long: `check verifies the source and destination credentials. With --rest it also
fetches a REST API resource with each session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			endpoints := []struct {
				name string
				ep   config.Endpoint
			}{
				{"source", a.cfg.Source},
				{"destination", a.cfg.Destination},
			}

			for _, e := range endpoints {
				c, err := client.New(e.ep.ClientConfig(e.name))
				if err != nil {
					return err
				}

				err = withSession(ctx, c, e.ep, func(c *client.Client) error {
					if resource == "" {
						return nil
					}
					body, err := c.REST(ctx, http.MethodGet, resource)
					if err != nil {
						return fmt.Errorf("rest %s: %w", resource, err)
					}
					fmt.Fprintf(out, "%s: GET %s returned %d bytes\n", e.name, resource, len(body))
					return nil
				})
				if err != nil {
					return fmt.Errorf("%s: %w", e.name, err)
				}
				fmt.Fprintf(out, "%s: ok\n", e.name)
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&resource, "rest", "", "REST resource to fetch, e.g. v1/projects")

	return cmd
}
