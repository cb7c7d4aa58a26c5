// Package jobs defines the gateway's job-type vocabulary and its mapping onto
// Edison job names.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/edison-gateway/internal/edison"
)

// JobType is the closed set of task kinds callers may request.
type JobType string

// Supported job types.
const (
	Literature JobType = "LITERATURE"
	Analysis   JobType = "ANALYSIS"
	Precedent  JobType = "PRECEDENT"
	Molecules  JobType = "MOLECULES"
	Dummy      JobType = "DUMMY"
)

// All returns every job type in catalog order.
func All() []JobType {
	return []JobType{Literature, Analysis, Precedent, Molecules, Dummy}
}

// Parse validates s against the closed set. Matching is exact.
func Parse(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", &InvalidJobTypeError{Value: s}
	}
	return t, nil
}

// Valid reports whether t is one of the supported job types.
func (t JobType) Valid() bool {
	switch t {
	case Literature, Analysis, Precedent, Molecules, Dummy:
		return true
	default:
		return false
	}
}

// EdisonName maps t to the platform's job name. Values outside the closed
// set never reach here because decoding rejects them.
func (t JobType) EdisonName() edison.JobName {
	switch t {
	case Literature:
		return edison.JobLiterature
	case Analysis:
		return edison.JobAnalysis
	case Precedent:
		return edison.JobPrecedent
	case Molecules:
		return edison.JobMolecules
	case Dummy:
		return edison.JobDummy
	}
	panic(fmt.Sprintf("jobs: unmapped job type %q", string(t)))
}

// UnmarshalJSON accepts only the supported job types.
func (t *JobType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &InvalidJobTypeError{Value: string(data)}
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// InvalidJobTypeError reports a value outside the supported set.
type InvalidJobTypeError struct {
	Value string
}

func (e *InvalidJobTypeError) Error() string {
	return fmt.Sprintf("invalid job type %s: must be one of LITERATURE, ANALYSIS, PRECEDENT, MOLECULES, DUMMY", e.Value)
}

// Info describes a job type for the public catalog.
type Info struct {
	Name        JobType `json:"name"`
	Description string  `json:"description"`
}

// Description is the human-readable summary shown in the catalog.
func (t JobType) Description() string {
	switch t {
	case Literature:
		return "Literature Search - Ask a question of scientific data sources, and receive a high-accuracy, cited response. Built with PaperQA3."
	case Analysis:
		return "Data Analysis - Turn biological datasets into detailed analyses answering your research questions."
	case Precedent:
		return "Precedent Search - Formerly known as HasAnyone, query if anyone has ever done something in science."
	case Molecules:
		return "Chemistry Tasks - A new iteration of ChemCrow, Phoenix uses cheminformatics tools to do chemistry. " +
			"Good for planning synthesis and designing new molecules."
	case Dummy:
		return "Dummy Task - This is a dummy task. Mainly for testing purposes."
	}
	return ""
}

// Catalog lists every job type with its description, in catalog order.
func Catalog() []Info {
	all := All()
	out := make([]Info, 0, len(all))
	for _, t := range all {
		out = append(out, Info{Name: t, Description: t.Description()})
	}
	return out
}
