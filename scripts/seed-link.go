package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/pflag"

	"github.com/linkpeek/linkpeek/internal/model"
	"github.com/linkpeek/linkpeek/internal/repository"
	"github.com/linkpeek/linkpeek/internal/urlcheck"
)

type output struct {
	LinkID    string   `json:"link_id"`
	OwnerID   string   `json:"owner_id"`
	DestURL   string   `json:"dest_url"`
	Sanitized string   `json:"sanitized_dest_url"`
	Warnings  []string `json:"warnings,omitempty"`
}

func main() {
	var (
		databaseURL = pflag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		ownerID     = pflag.String("owner-id", "seed", "Owner of the link")
		linkID      = pflag.String("id", "", "Link ID (generated when empty)")
		inactive    = pflag.Bool("inactive", false, "Create the link deactivated")
		format      = pflag.String("format", "plain", "Output format: plain or json")
	)
	pflag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: seed-link [flags] <destination-url>")
		os.Exit(1)
	}

	dest := pflag.Arg(0)
	report := urlcheck.Validate(dest)
	if !report.IsValid {
		fmt.Fprintln(os.Stderr, "invalid destination:", strings.Join(report.Issues, "; "))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	id := *linkID
	if id == "" {
		id = ulid.Make().String()
	}
	now := time.Now().UTC()
	link := &model.Link{
		ID:               id,
		OwnerID:          *ownerID,
		DestURL:          dest,
		SanitizedDestURL: &report.Sanitized,
		IsActive:         !*inactive,
		HealthStatus:     model.HealthUnknown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := repo.CreateLink(ctx, link); err != nil {
		fmt.Fprintln(os.Stderr, "create link:", err)
		os.Exit(1)
	}

	out := output{
		LinkID:    link.ID,
		OwnerID:   link.OwnerID,
		DestURL:   link.DestURL,
		Sanitized: report.Sanitized,
		Warnings:  report.Warnings,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.LinkID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
