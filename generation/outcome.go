package generation

import (
	"fmt"

	"github.com/teranos/cadence/pulse/async"
)

// Step names one stage of the pipeline
type Step string

const (
	StepProfileSynthesis Step = "profile_synthesis"
	StepPersistence      Step = "persistence"
	StepImageGeneration  Step = "image_generation"
	StepFaceSwap         Step = "face_swap"
	StepAutoPost         Step = "auto_post"
)

// StepRecord is the result of one step or one loop iteration
type StepRecord struct {
	Step      Step   `json:"step"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Iteration int    `json:"iteration,omitempty"` // 1-based; 0 outside the image loop
	Fatal     bool   `json:"fatal,omitempty"`
}

func (r StepRecord) String() string {
	if r.Iteration > 0 {
		return fmt.Sprintf("%s #%d: %s", r.Step, r.Iteration, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Step, r.Detail)
}

// Outcome is what one pipeline run produced
type Outcome struct {
	Status    async.JobStatus `json:"status"` // completed or failed
	ResultRef string          `json:"result_ref,omitempty"`
	Images    int             `json:"images"`
	PostID    string          `json:"post_id,omitempty"`
	Steps     []StepRecord    `json:"steps"`
	Err       error           `json:"-"` // the fatal error when Status is failed
}

func (o *Outcome) ok(step Step, iteration int, detail string) {
	o.Steps = append(o.Steps, StepRecord{Step: step, OK: true, Iteration: iteration, Detail: detail})
}

func (o *Outcome) fail(step Step, iteration int, err error) {
	o.Steps = append(o.Steps, StepRecord{Step: step, Iteration: iteration, Detail: err.Error()})
}

// abort records a fatal step and fails the outcome with err
func (o *Outcome) abort(step Step, err error) *Outcome {
	o.Steps = append(o.Steps, StepRecord{Step: step, Detail: err.Error(), Fatal: true})
	o.Status = async.JobStatusFailed
	o.Err = err
	return o
}

// StepErrors lists the failed steps, fatal or not
func (o *Outcome) StepErrors() []string {
	var errs []string
	for _, r := range o.Steps {
		if !r.OK {
			errs = append(errs, r.String())
		}
	}
	return errs
}

// Warnings are the non-fatal step errors
func (o *Outcome) Warnings() []string {
	var warnings []string
	for _, r := range o.Steps {
		if !r.OK && !r.Fatal {
			warnings = append(warnings, r.String())
		}
	}
	return warnings
}

// Result converts the outcome to what the drainer records on the job
func (o *Outcome) Result() *async.Result {
	return &async.Result{
		ResultRef: o.ResultRef,
		Warnings:  o.Warnings(),
	}
}
