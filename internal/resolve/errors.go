package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/impressum-resolver/internal/llm"
)

// Stage names one external step of the pipeline.
type Stage string

const (
	StageSearch    Stage = "search"
	StageNormalize Stage = "normalize"
	StageMap       Stage = "map"
	StageLocate    Stage = "locate"
	StageScrape    Stage = "scrape"
	StageExtract   Stage = "extract"
)

// Kind classifies failures. An empty result is not a failure and has no Kind.
type Kind int

const (
	KindTransport Kind = iota + 1
	KindValidation
	KindNormalization
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindNormalization:
		return "normalization"
	default:
		return "unknown"
	}
}

// ErrEmptyContent is returned when a scraped page yields no text.
var ErrEmptyContent = errors.New("page content is empty")

// StageError is a failure of one stage for one entity.
type StageError struct {
	Stage Stage
	Title string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "stage error"
	}
	return fmt.Sprintf("%s %q: %s failure: %v", e.Stage, e.Title, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NormalizationError reports a link that could not be reduced to a site root.
type NormalizationError struct {
	Input string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return "normalization error"
	}
	return fmt.Sprintf("normalize %q: %v", e.Input, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError reports an extracted record that is missing required fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid company record"
	}
	return "invalid company record: missing " + strings.Join(e.Fields, ", ")
}

// AbortError ends a run under the abort-run policy.
type AbortError struct {
	Outcome Outcome
}

func (e *AbortError) Error() string {
	if e == nil {
		return "run aborted"
	}
	return fmt.Sprintf("run aborted at %q (%s): %v", e.Outcome.Title, e.Outcome.Reason, e.Outcome.Err)
}

func (e *AbortError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Outcome.Err
}

func classify(err error) Kind {
	var ne *NormalizationError
	if errors.As(err, &ne) {
		return KindNormalization
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var de *llm.DecodeError
	if errors.As(err, &de) {
		return KindValidation
	}
	if errors.Is(err, ErrEmptyContent) {
		return KindValidation
	}
	return KindTransport
}
