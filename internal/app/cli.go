package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"makedeal/internal/authz"
	"makedeal/internal/config"
	"makedeal/internal/middleware"
	"makedeal/internal/models"
	"makedeal/internal/repositories"
)

// Execute runs the dealpipeline command line.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "dealpipeline",
		Short:         "M&A deal pipeline stage engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}
	root.AddCommand(newServeCmd(load), newMigrateCmd(load), newStagesCmd(load), newTokenCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := NewLogger(cfg.Logging, os.Stderr)
			setGinMode(cfg.Logging.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close", "error", err)
				}
			}()
			return a.Run(ctx)
		},
	}
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema and seed the stage catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return errors.New("migrate needs storage.driver=postgres")
			}
			logger := NewLogger(cfg.Logging, cmd.ErrOrStderr())
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := OpenDB(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := repositories.Migrate(ctx, db); err != nil {
				return err
			}
			stages, err := LoadStages(ctx, repositories.NewStageRepository(db), cfg.Pipeline.Stages, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready, %d stages in catalog\n", len(stages))
			return nil
		},
	}
}

func newStagesCmd(load configLoader) *cobra.Command {
	var fromDB bool
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Print the stage catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			stages := cfg.Pipeline.Stages
			if fromDB {
				db, err := OpenDB(cmd.Context(), cfg.Database.DSN)
				if err != nil {
					return err
				}
				defer db.Close()
				if stages, err = repositories.NewStageRepository(db).ListStages(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderStages(stages))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromDB, "db", false, "read the catalog from the database instead of the config")
	return cmd
}

func newTokenCmd(load configLoader) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for API calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			roleID, err := authz.ParseRole(role)
			if err != nil {
				return err
			}
			tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), userID, roleID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed")
	cmd.Flags().StringVar(&role, "role", "sales", "role name or id to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	cellStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	wonStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	lostStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	tableBorder   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	stagesColumns = []string{"ORDER", "KEY", "NAME", "WIP", "WARN", "CRIT", "PROB", "TASKS"}
)

// RenderStages formats the catalog as a bordered table.
func RenderStages(stages []models.StageDefinition) string {
	rows := [][]string{stagesColumns}
	for _, s := range stages {
		rows = append(rows, []string{
			strconv.Itoa(s.SortOrder),
			s.Key,
			s.DisplayName,
			optInt(s.WipLimit),
			optInt(s.WarningDays),
			optInt(s.CriticalDays),
			strconv.Itoa(s.DefaultProbability) + "%",
			strconv.Itoa(len(s.AutoTasks)),
		})
	}

	widths := make([]int, len(stagesColumns))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		style := cellStyle
		switch {
		case r == 0:
			style = headerStyle
		case stages[r-1].IsWonTerminal:
			style = wonStyle
		case stages[r-1].IsLostTerminal:
			style = lostStyle
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = style.Width(widths[i] + 2).Render(cell)
		}
		lines = append(lines, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
	return tableBorder.Render(strings.Join(lines, "\n"))
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
