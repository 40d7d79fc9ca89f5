// Package logging provides structured logging for collabd.
//
// This package wraps Go's log/slog to write JSON-formatted logs with
// persistent context attributes, so every line emitted while handling a
// collaboration command can be filtered by entity, user or connection.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers created
// via With* methods share the underlying handler and level.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/collabd", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("gateway listening", "addr", ":8080")
//
// # Context Propagation
//
//	l := logger.WithEntity("employee", "42").WithUser("u-1").WithConnection("c-9")
//	l.Warn("lock denied", "field", "salary")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"lock denied","entity_type":"employee","entity_id":"42","user_id":"u-1","connection_id":"c-9","field":"salary"}
//
// # Runtime Level Changes
//
// [Logger.SetLevel] updates the level shared by a logger and all of its
// children. The serve command calls it when the config file changes.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on emitted lines.
package logging
