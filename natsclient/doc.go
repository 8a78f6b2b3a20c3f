// Package natsclient publishes registry changes to NATS.
//
// Client wraps a single nats.go connection with status tracking, slog
// logging and a health.Status view for the monitor. ChangeFeed turns every
// gateway.Change into a JSON message on
//
//	<subject>.<node>       for changes scoped to one node
//	<subject>._<kind>      for default, reset and reload
//
// Node ids are reduced to a single subject token: dots, wildcards and
// whitespace become underscores.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	feed := natsclient.NewChangeFeed(client, "switchboard.changes", logger)
//
// The feed never blocks ingestion on the broker: publishing while
// disconnected fails fast with a transient error.
package natsclient
