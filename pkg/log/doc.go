/*
Package log provides structured logging for cellar using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all cellar packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add an arbitrary component name to all logs
  - WithBlobStore: Tag logs with a blob tier name (memory/file/bolt/postgres)
  - WithRefStore: Tag logs with a RefStore backend name (memory/bolt/postgres/raft)
  - WithSession: Tag logs with a (name, namespace) cell
  - WithFingerprint: Tag logs with a blob fingerprint

# Usage

	import "github.com/cuemby/cellar/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("cellar starting")

	blobLog := log.WithBlobStore("postgres")
	blobLog.Info().Str("fingerprint", fp).Msg("blob stored")

	refLog := log.WithRefStore("raft")
	refLog.Warn().Err(err).Msg("OCC conflict on Update")

	sessionLog := log.WithSession("cfg", "app")
	sessionLog.Debug().Msg("ref subscription delivered new fingerprint")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields (blob tier, ref backend, cell)
  - Pass context loggers down into long-lived components (a BoltStore, a
    RaftStore, a Session) rather than reaching for the global Logger
  - Avoids repetitive field specification

Error Logging Pattern:
  - Always use .Err(err) for error objects, not string interpolation
  - cellarerr sentinel errors (NotFound, OCCConflict, Corruption, ...)
    should be logged with .Err(err) so the wrapped chain survives

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
