// Copyright 2018 The Blink Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blinkprotocol/blink/dynschema"
	"github.com/blinkprotocol/blink/internal/logging"
	"github.com/blinkprotocol/blink/internal/start"
	"github.com/blinkprotocol/blink/registry"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and apply Dynamic Schema Exchange updates",
	}
	cmd.AddCommand(newSchemaApplyCmd())
	cmd.AddCommand(newSchemaWatchCmd())
	return cmd
}

// newSchemaApplyCmd applies one or more streams of Compact Binary schema
// transport frames and prints the resulting type id table. Multiple --in
// files are decoded concurrently via dynschema.DecodeBuffersWithSchemaExchange,
// since each is an independent source (e.g. one per upstream feed) that
// only needs to agree on the registry it mutates.
func newSchemaApplyCmd() *cobra.Command {
	var inputs []string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply one or more streams of schema transport frames from files or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeRegistry, err := compileRegistry(rootFlags.schemaPath)
			if err != nil {
				return err
			}
			session := registry.NewSchemaRegistry(typeRegistry)

			if len(inputs) == 0 {
				inputs = []string{"-"}
			}
			buffers := make([][]byte, len(inputs))
			for i, path := range inputs {
				data, err := readInput(path)
				if err != nil {
					return err
				}
				buffers[i] = data
			}

			results, err := dynschema.DecodeBuffersWithSchemaExchange(cmd.Context(), buffers, session, rootFlags.strict)
			if err != nil {
				return fmt.Errorf("applying schema stream: %w", err)
			}

			total := 0
			for _, messages := range results {
				total += len(messages)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d schema stream(s): %d application message(s) passed through\n", len(buffers), total)
			for _, id := range session.TypeRegistry().KnownTypeIDs() {
				fmt.Fprintf(cmd.OutOrStdout(), "  type id %d\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&inputs, "in", nil, "input file (repeatable), or - for stdin; defaults to stdin alone")
	return cmd
}

// newSchemaWatchCmd runs a long-lived dynschema.Session: one loop ingests
// schema transport frames from stdin via Session.IngestStream, and a
// second polls the same session with Session.Alive/Subscribe every 30
// seconds so a lagging or restarted heartbeat client's view can
// be compared against what has actually been applied. It exercises
// internal/start's signal-driven shutdown the way the teacher's service
// commands do.
func newSchemaWatchCmd() *cobra.Command {
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously apply schema transport frames from stdin until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeRegistry, err := compileRegistry(rootFlags.schemaPath)
			if err != nil {
				return err
			}
			session := dynschema.NewSession(registry.NewSchemaRegistry(typeRegistry))
			logger := logging.New("schema-watch", rootFlags.logLevel)

			ingest := func(ctx context.Context) error {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				messages, err := session.IngestStream(data, rootFlags.strict)
				if err != nil {
					return err
				}
				logger.Info("schema stream applied", "application_messages", len(messages))
				return nil
			}

			heartbeat := func(ctx context.Context) error {
				toServer := make(chan dynschema.Heartbeat)
				toClient := make(chan dynschema.Update)
				subscribed := make(chan error, 1)
				go func() { subscribed <- session.Subscribe(ctx, toServer, toClient) }()

				var known []int64
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case err := <-subscribed:
						return err
					case <-ticker.C:
						select {
						case toServer <- dynschema.Heartbeat{AppliedTypeIDs: known}:
						case <-ctx.Done():
							return nil
						}
						select {
						case update := <-toClient:
							if len(update.Pending) > 0 {
								logger.Info("schema catch-up", "pending_updates", len(update.Pending))
							}
						case <-ctx.Done():
							return nil
						}
						resp, err := session.Alive(ctx, &dynschema.AliveRequest{})
						if err != nil {
							return err
						}
						known = resp.KnownTypeIDs
						logger.Debug("session alive", "known_type_ids", len(known))
					}
				}
			}

			return start.Run(cmd.Context(), stopTimeout, func(ctx context.Context) error {
				return start.RunAll(ctx, ingest, heartbeat)
			})
		},
	}

	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 5*time.Second, "grace period to finish in-flight work after a shutdown signal")
	return cmd
}
