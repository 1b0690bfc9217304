package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/config"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/server"
	"github.com/sakif/community-events/internal/service"
)

const (
	seedAdmin = "testadmin"
	seedUser  = "testuser"
)

// seedEvent is a sample event dated relative to the moment seed runs, so
// the data always passes the future-date rule.
type seedEvent struct {
	externalID  string
	title       string
	description string
	location    string
	in          time.Duration
	capacity    int
	price       float64
	imageURL    string
	url         string
}

var seedEvents = []seedEvent{
	{
		externalID:  "seed-tech-conference",
		title:       "Tech Conference",
		description: "Annual technology conference featuring the latest in AI and web development",
		location:    "London Convention Centre",
		in:          30 * 24 * time.Hour,
		capacity:    500,
		price:       99.99,
		imageURL:    "https://example.com/tech-conf.jpg",
		url:         "https://techconf.example.com",
	},
	{
		externalID:  "seed-community-meetup",
		title:       "Community Meetup",
		description: "Monthly developer meetup for networking and knowledge sharing",
		location:    "The Coffee Hub, Manchester",
		in:          7 * 24 * time.Hour,
		capacity:    50,
		price:       0,
	},
	{
		externalID:  "seed-music-festival",
		title:       "Music Festival",
		description: "Three-day music festival featuring local and international artists",
		location:    "Hyde Park, London",
		in:          45 * 24 * time.Hour,
		capacity:    10000,
		price:       150,
		imageURL:    "https://example.com/music-fest.jpg",
		url:         "https://musicfest.example.com",
	},
	{
		externalID:  "seed-go-workshop",
		title:       "Workshop: Go Best Practices",
		description: "Hands-on workshop covering idiomatic Go, testing and profiling",
		location:    "Tech Space Birmingham",
		in:          12 * 24 * time.Hour,
		capacity:    30,
		price:       49.99,
	},
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample users and events",
		Long: `Create the sample accounts and events used in development.

Accounts:
  testadmin / admin123     (admin)
  testuser  / password123

Running seed again skips rows that already exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := config.NewLogger(cfg.Log, os.Stderr)

			store, err := server.OpenStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return seed(cmd.Context(), store, auth.NewPasswordService(cfg.Auth.BcryptCost), logger, cmd.OutOrStdout())
		},
	}
}

func seed(ctx context.Context, store repository.Store, passwords *auth.PasswordService, logger *slog.Logger, out io.Writer) error {
	users := service.NewUserService(store, passwords, nil, logger)
	events := service.NewEventService(store, nil, 0, logger)

	if _, err := users.BootstrapAdmin(ctx, seedAdmin, seedAdmin+"@example.com", "admin123"); err != nil {
		return fmt.Errorf("seed: admin: %w", err)
	}

	hash, err := passwords.Hash("password123")
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	err = store.Users().Create(ctx, &model.User{
		Username:     seedUser,
		Name:         "Test User",
		Email:        seedUser + "@example.com",
		PasswordHash: hash,
	})
	if err != nil && !errors.Is(err, apperror.ErrConflict) {
		return fmt.Errorf("seed: user: %w", err)
	}

	admin := auth.Identity{Username: seedAdmin, IsAdmin: true}
	now := time.Now().UTC().Truncate(time.Hour)

	var created, skipped atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range seedEvents {
		e := e // per-iteration copy; module targets go 1.21 loop semantics
		g.Go(func() error {
			externalID := e.externalID
			_, err := events.Create(gctx, admin, service.CreateEventInput{
				Title:       e.title,
				Description: e.description,
				Location:    e.location,
				Date:        now.Add(e.in),
				Capacity:    e.capacity,
				Price:       e.price,
				ImageURL:    e.imageURL,
				URL:         e.url,
				ExternalID:  &externalID,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperror.ErrConflict):
				skipped.Add(1)
			default:
				return fmt.Errorf("seed: event %q: %w", e.title, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "seeded %d event(s), %d already present\n", created.Load(), skipped.Load())
	return nil
}
