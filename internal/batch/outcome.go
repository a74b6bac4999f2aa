package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is the final classification of one input file
type Status int

const (
	StatusConverted Status = iota
	StatusFailed
)

// String returns the status name used in logs and metrics
func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PartialPolicy decides how a file is classified when some speakers
// succeeded and others failed
type PartialPolicy string

const (
	PartialFail    PartialPolicy = "fail"
	PartialSuccess PartialPolicy = "success"
)

// ParsePartialPolicy validates a policy name; empty means PartialFail
func ParsePartialPolicy(name string) (PartialPolicy, error) {
	switch PartialPolicy(strings.ToLower(name)) {
	case "", PartialFail:
		return PartialFail, nil
	case PartialSuccess:
		return PartialSuccess, nil
	default:
		return "", fmt.Errorf("unknown partial policy %q", name)
	}
}

// SpeakerError records the failure of one speaker pass
type SpeakerError struct {
	Speaker string
	Err     error
}

func (e SpeakerError) Error() string {
	return fmt.Sprintf("speaker %s: %v", e.Speaker, e.Err)
}

func (e SpeakerError) Unwrap() error {
	return e.Err
}

// Outcome is the result of processing one input file. It is never persisted.
type Outcome struct {
	Source   string
	Status   Status
	Outputs  []string
	Bytes    int64
	Failures []SpeakerError
	Err      error // file-level failure before any speaker ran
	Elapsed  time.Duration
}

// Reason joins every failure of the outcome; nil when nothing failed
func (o Outcome) Reason() error {
	errs := make([]error, 0, len(o.Failures)+1)
	if o.Err != nil {
		errs = append(errs, o.Err)
	}
	for _, f := range o.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Summary aggregates the outcomes of a run
type Summary struct {
	Files          int
	Converted      int
	Failed         int
	Skipped        int
	Outputs        int
	Bytes          int64
	RelocateErrors int
	Elapsed        time.Duration
}

func (s *Summary) add(o Outcome) {
	s.Files++
	s.Outputs += len(o.Outputs)
	s.Bytes += o.Bytes
	if o.Status == StatusConverted {
		s.Converted++
	} else {
		s.Failed++
	}
}

// String renders the summary for the completion report
func (s Summary) String() string {
	return fmt.Sprintf("%s files (%s converted, %s failed, %s skipped), %s outputs, %s written in %s",
		humanize.Comma(int64(s.Files)),
		humanize.Comma(int64(s.Converted)),
		humanize.Comma(int64(s.Failed)),
		humanize.Comma(int64(s.Skipped)),
		humanize.Comma(int64(s.Outputs)),
		humanize.Bytes(uint64(s.Bytes)),
		s.Elapsed.Round(time.Millisecond),
	)
}
