package domain

import "testing"

func TestResult_Validate(t *testing.T) {
	over := 11.0
	testCases := []struct {
		name string
		r    Result
		ok   bool
	}{
		{"valid", Result{SubmissionID: "s", JobSeq: 1, Score: 8, Confidence: 0.9}, true},
		{"bounds", Result{SubmissionID: "s", JobSeq: 1, Score: 10, Confidence: 1}, true},
		{"missing submission", Result{JobSeq: 1}, false},
		{"zero seq", Result{SubmissionID: "s"}, false},
		{"score too high", Result{SubmissionID: "s", JobSeq: 1, Score: 10.5}, false},
		{"negative confidence", Result{SubmissionID: "s", JobSeq: 1, Confidence: -0.1}, false},
		{"compliance too high", Result{SubmissionID: "s", JobSeq: 1, ComplianceScore: &over}, false},
		{"negative processing", Result{SubmissionID: "s", JobSeq: 1, ProcessingMS: -1}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	score := 5.0
	j := &Job{ID: "j", Score: &score, Issues: []string{"missing signature"}}
	c := j.Clone()
	*c.Score = 9
	c.Issues[0] = "changed"
	if *j.Score != 5 || j.Issues[0] != "missing signature" {
		t.Error("Clone shares state with the original")
	}
	if (*Job)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestJobStatus_Finished(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobFailed, JobSuperseded} {
		if !s.Finished() {
			t.Errorf("%s should be finished", s)
		}
	}
	for _, s := range []JobStatus{JobQueued, JobRunning} {
		if s.Finished() {
			t.Errorf("%s should not be finished", s)
		}
	}
}
