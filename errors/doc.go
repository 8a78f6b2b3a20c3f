// Package errors provides standardized error handling patterns for Switchboard components.
//
// # Overview
//
// Errors are grouped into three classes: Transient (temporary, a caller may retry),
// Invalid (bad input or configuration, do not retry) and Fatal (stop processing).
// Switchboard never retries internally; the classes drive how adapters report a
// failure outward (HTTP status, log level, silent skip).
//
// # Domain Sentinels
//
//   - ErrNotFound: unknown node_id or sensor_id. Surfaced as 404 by the control
//     adapter and silently skipped per node by batch ingest paths.
//   - ErrInvalidValue / ValidationErrors: a field value that does not parse under
//     the sensor's declared type. Rejected for that field only.
//   - ErrInvalidConfig: malformed sensor configuration. Fatal at startup, reported
//     and kept out of service on reload.
//
// # Classification
//
// The class of an error is the class of the outermost ClassifiedError in its
// chain. Without one, ValidationErrors count as Invalid and the package
// sentinels carry a fixed class (config sentinels Fatal, broker sentinels and
// context errors Transient, value sentinels Invalid). Anything else is
// unclassified: IsTransient and IsFatal both report false for it.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Wrap preserves the original classification, while WrapTransient, WrapInvalid and
// WrapFatal set it:
//
//	if _, ok := nodes[nodeID]; !ok {
//	    return errors.WrapInvalid(errors.ErrNotFound, "Registry", "SetValues",
//	        fmt.Sprintf("lookup node %s", nodeID))
//	}
//
// Classification and sentinels survive wrapping, so callers use the standard
// library helpers:
//
//	if errors.IsNotFound(err) {
//	    w.WriteHeader(http.StatusNotFound)
//	}
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
package errors
