package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/murphlabs/murph/backend/internal/analysis/bonus"
	"github.com/murphlabs/murph/backend/internal/analysis/pricing"
	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/config"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/internal/storage"
)

type estimateView struct {
	Seconds        int64  `json:"seconds" yaml:"seconds"`
	Elapsed        string `json:"elapsed" yaml:"elapsed"`
	PricePerMinute string `json:"pricePerMinute" yaml:"pricePerMinute"`
	EstimatedCost  string `json:"estimatedCost" yaml:"estimatedCost"`
}

func newEstimateCmd(opts *rootOptions) *cobra.Command {
	var (
		seconds int64
		price   string
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price an elapsed watch time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ppm, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price %q: %w", price, err)
			}
			cost, err := pricing.EstimateCost(seconds, ppm)
			if err != nil {
				return err
			}
			view := estimateView{
				Seconds:        seconds,
				Elapsed:        pricing.FormatElapsed(seconds),
				PricePerMinute: ppm.String(),
				EstimatedCost:  pricing.Display(cost),
			}
			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s at %s/min = %s\n", view.Elapsed, view.PricePerMinute, view.EstimatedCost)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&seconds, "seconds", 0, "Elapsed seconds")
	cmd.Flags().StringVar(&price, "price", "", "Price per minute")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

type bonusView struct {
	Score    float64 `json:"score" yaml:"score"`
	Bonus    int     `json:"bonus" yaml:"bonus"`
	Label    string  `json:"label" yaml:"label"`
	Feedback string  `json:"feedback" yaml:"feedback"`
}

func newBonusCmd(opts *rootOptions) *cobra.Command {
	var score float64
	cmd := &cobra.Command{
		Use:   "bonus",
		Short: "Show the bonus credits for a review quality score",
		RunE: func(cmd *cobra.Command, args []string) error {
			credits, err := bonus.Calculate(score)
			if err != nil {
				return err
			}
			label := bonus.Classify(score)
			view := bonusView{Score: score, Bonus: credits, Label: string(label), Feedback: bonus.Feedback(label)}
			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "+%d credits (%s) %s\n", view.Bonus, view.Label, view.Feedback)
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&score, "score", 0, "Quality score between 0 and 1")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

type listingView struct {
	ID             string  `json:"id" yaml:"id"`
	Title          string  `json:"title" yaml:"title"`
	Instructor     string  `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	Minutes        float64 `json:"durationMinutes" yaml:"durationMinutes"`
	PricePerMinute string  `json:"pricePerMinute" yaml:"pricePerMinute"`
	ReserveAmount  string  `json:"reserveAmount" yaml:"reserveAmount"`
}

func newListingsCmd(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		tag        string
		backendURL string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "List marketplace listings from the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if backendURL != "" {
				cfg.Backend.BaseURL = backendURL
			}
			if timeout > 0 {
				cfg.Backend.Timeout = timeout
			}

			client, err := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, cliLogger(cmd))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backend.Timeout)
			defer cancel()

			items, err := client.ListListings(ctx, listing.Query{Limit: limit, Tag: tag})
			if err != nil {
				return err
			}

			views := make([]listingView, 0, len(items))
			for _, l := range items {
				views = append(views, listingView{
					ID:             l.ID,
					Title:          l.Title,
					Instructor:     l.InstructorName,
					Minutes:        l.DurationMinutes,
					PricePerMinute: l.PricePerMinute.String(),
					ReserveAmount:  pricing.Display(l.ReserveAmount),
				})
			}
			return render(cmd.OutOrStdout(), opts.output, views, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tMINUTES\tPRICE/MIN\tRESERVE")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\n", v.ID, v.Title, v.Minutes, v.PricePerMinute, v.ReserveAmount)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum listings to fetch")
	cmd.Flags().StringVar(&tag, "tag", "", "Only listings carrying this tag")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "Backend base URL (defaults to MURPH_BACKEND_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout (defaults to MURPH_BACKEND_TIMEOUT)")
	return cmd
}

type settlementView struct {
	SessionID   string    `json:"sessionId" yaml:"sessionId"`
	Title       string    `json:"title" yaml:"title"`
	Elapsed     string    `json:"elapsed" yaml:"elapsed"`
	Completion  float64   `json:"completion" yaml:"completion"`
	FinalCharge string    `json:"finalCharge" yaml:"finalCharge"`
	Refund      string    `json:"refund" yaml:"refund"`
	EndedAt     time.Time `json:"endedAt" yaml:"endedAt"`
}

func newSettlementsCmd(opts *rootOptions) *cobra.Command {
	var (
		student string
		driver  string
		dsn     string
	)
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "Show settled sessions stored in the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if driver != "" {
				cfg.Storage.Driver = driver
			}
			if dsn != "" {
				cfg.Storage.DSN = dsn
			}

			repo, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.ListSettlementsByStudent(cmd.Context(), student)
			if err != nil {
				return err
			}

			views := make([]settlementView, 0, len(records))
			for _, rec := range records {
				views = append(views, settlementView{
					SessionID:   rec.SessionID,
					Title:       rec.ListingTitle,
					Elapsed:     pricing.FormatElapsed(rec.ElapsedSeconds),
					Completion:  rec.CompletionPercentage,
					FinalCharge: pricing.Display(rec.FinalCharge),
					Refund:      pricing.Display(rec.Refund),
					EndedAt:     rec.EndedAt.UTC(),
				})
			}
			return render(cmd.OutOrStdout(), opts.output, views, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tTITLE\tELAPSED\tCHARGED\tREFUND\tENDED")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						v.SessionID, v.Title, v.Elapsed, v.FinalCharge, v.Refund, v.EndedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&student, "student", "", "Student id")
	cmd.Flags().StringVar(&driver, "driver", "", "Storage driver: sqlite or postgres")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Storage DSN (sqlite path or postgres URL)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}
