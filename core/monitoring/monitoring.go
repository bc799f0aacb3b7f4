// Package monitoring defines the error reporting port. Implementations are
// injected; there is no process-wide monitor.
package monitoring

import "time"

// Tag keys attached to captured errors.
const (
	TagModule  = "module"
	TagSession = "session"
	TagKind    = "kind"
	TagTopic   = "topic"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover must be deferred directly. It reports a panic and re-panics.
	Recover()
	Flush(timeout time.Duration)
}

// SessionTags builds the tag set for an error raised by module while serving
// session id. extra is read as key/value pairs; a trailing key is dropped and
// empty values are skipped.
func SessionTags(module, id string, extra ...string) map[string]string {
	tags := make(map[string]string, 2+len(extra)/2)
	if module != "" {
		tags[TagModule] = module
	}
	if id != "" {
		tags[TagSession] = id
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != "" {
			tags[extra[i]] = extra[i+1]
		}
	}
	return tags
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}
