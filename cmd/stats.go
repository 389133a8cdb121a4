package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/repository"
	"github.com/xiaot623/gogo/supportchat/internal/service"
)

var statsOwner string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print an owner's chat statistics",
	Long:  `Read the configured store directly and print the same rollup GET /api/chat/stats returns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statsOwner == "" {
			return errors.New("--owner is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()

		svc := service.New(db, nil, nil, cfg)
		stats, err := svc.GetStats(cmd.Context(), statsOwner)
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), renderStats(statsOwner, stats))
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "owner id to summarize")
	rootCmd.AddCommand(statsCmd)
}

func renderStats(owner string, stats *domain.Stats) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Chat statistics for "+owner) + "\n\n")
	fmt.Fprintf(&b, "  Sessions: %s\n", countStyle.Render(fmt.Sprint(stats.TotalSessions)))
	fmt.Fprintf(&b, "  Messages: %s\n", countStyle.Render(fmt.Sprint(stats.TotalMessages)))

	if len(stats.RecentActivity) == 0 {
		b.WriteString("\n  No recent activity.\n")
		return b.String()
	}
	b.WriteString("\n  Recent activity:\n")
	for _, a := range stats.RecentActivity {
		fmt.Fprintf(&b, "  • %s %s\n    %s messages, updated %s\n",
			titleStyle.Render(a.Title),
			idStyle.Render(a.SessionID),
			countStyle.Render(fmt.Sprint(a.MessageCount)),
			dateStyle.Render(a.UpdatedAt.Local().Format(time.DateTime)),
		)
	}
	return b.String()
}
