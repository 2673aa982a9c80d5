package disposition

import "testing"

func TestAggregateRulePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in []Disposition
		want Disposition
	}{
		{"failed dominates", []Disposition{Passed, Incomplete, Failed}, Failed},
		{"incomplete before not-applicable", []Disposition{NotApplicable, Incomplete}, Incomplete},
		{"not-applicable before aborted", []Disposition{Aborted, NotApplicable}, NotApplicable},
		{"aborted before passed", []Disposition{Passed, Aborted}, Aborted},
		{"all passed", []Disposition{Passed, Passed, ExpectedFail}, Passed},
		{"empty set is incomplete", nil, Incomplete},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Aggregate(c.in); got != c.want {
				t.Errorf("Aggregate(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestExitCodeMapping(t *testing.T) {
	if ExitCode(Passed) != 0 {
		t.Errorf("Passed should exit 0")
	}
	if ExitCode(Failed) != 1 {
		t.Errorf("Failed should exit 1")
	}
	if ExitCode(Incomplete) != 2 {
		t.Errorf("Incomplete should exit 2")
	}
}

func TestStringAndSignal(t *testing.T) {
	if Passed.String() != "Passed" {
		t.Errorf("String = %q", Passed.String())
	}
	if Failed.Signal() != "test-failure" {
		t.Errorf("Signal = %q", Failed.Signal())
	}
	if Aborted.Signal() != "" {
		t.Errorf("Aborted.Signal = %q, want empty", Aborted.Signal())
	}
}
