package main

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"folio/pkg/client"
	"folio/pkg/config"
	"folio/pkg/manager"
	"folio/pkg/repository/postgres"
	"folio/pkg/session"
)

func newHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := session.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", session.DefaultCost, "bcrypt cost")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the metadata schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if cfg.Database.Driver == config.DriverPostgres {
				if err := postgres.Migrate(ctx, cfg.Database.DSN); err != nil {
					return err
				}
			} else {
				repo, err := manager.OpenRepository(ctx, cfg.Database)
				if err != nil {
					return err
				}
				if err := repo.Close(); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config")
	return cmd
}

func newLoginCmd(g *globalFlags) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange the admin password for a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("password is required (--password or ADMIN_PASSWORD)")
			}

			sess, err := g.client().Login(cmd.Context(), password)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sess)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Admin password")
	return cmd
}

func newProjectsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Short: "Manage portfolio projects"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := g.client().ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), projects)
		},
	}

	var form client.ProjectForm
	var images []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := readFiles(images)
			if err != nil {
				return err
			}
			form.Images = files

			project, err := g.client().CreateProject(cmd.Context(), form)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), project)
		},
	}
	create.Flags().StringVar(&form.Title, "title", "", "Project title")
	create.Flags().StringVar(&form.Details, "details", "", "Project description")
	create.Flags().StringSliceVar(&form.Services, "service", nil, "Service tag (repeatable)")
	create.Flags().StringSliceVar(&images, "image", nil, "Image file (repeatable)")

	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := g.client().DeleteProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%d images)\n", args[0], removed)
			return nil
		},
	}

	cmd.AddCommand(list, create, remove)
	return cmd
}

func newServicesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "services", Short: "Manage the service catalog"}

	var bookableOnly bool
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := client.ServiceQuery{Limit: limit, Offset: offset}
			if bookableOnly {
				q.Bookable = &bookableOnly
			}
			services, err := g.client().ListServices(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), services)
		},
	}
	list.Flags().BoolVar(&bookableOnly, "bookable", false, "Only bookable services")
	list.Flags().IntVar(&limit, "limit", 0, "Page size (1-100)")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	var form client.ServiceForm
	var image string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if image != "" {
				files, err := readFiles([]string{image})
				if err != nil {
					return err
				}
				form.Image = &files[0]
			}

			service, err := g.client().CreateService(cmd.Context(), form)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), service)
		},
	}
	create.Flags().StringVar(&form.Title, "title", "", "Service title")
	create.Flags().StringVar(&form.Details, "details", "", "Service description")
	create.Flags().StringVar(&form.Icon, "icon", "", "Icon name")
	create.Flags().StringVar(&form.PriceCents, "price-cents", "", "Price in cents")
	create.Flags().StringVar(&form.Currency, "currency", "", "USD, EUR, GBP, CAD or AUD")
	create.Flags().StringVar(&form.IsBookable, "bookable", "false", "Whether the service can be booked")
	create.Flags().StringVar(&form.DurationMinutes, "duration", "", "Duration in minutes")
	create.Flags().StringVar(&image, "image", "", "Image file")

	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.client().DeleteService(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, remove)
	return cmd
}

// readFiles loads images from disk, guessing the content type from the
// extension.
func readFiles(paths []string) ([]client.File, error) {
	files := make([]client.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, client.File{Name: filepath.Base(p), ContentType: contentType, Data: data})
	}
	return files, nil
}

