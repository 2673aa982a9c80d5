package loader

import (
	"context"
	"testing"

	"devtester/internal/testcase"
)

type fakeCase struct {
	opts testcase.TestOptions
}

func (c *fakeCase) Options() testcase.TestOptions { return c.opts }

func (c *fakeCase) Procedure(ctx context.Context, tc *testcase.Context, args []interface{}, kwargs map[string]interface{}) {
	tc.Passed("ok")
}

func TestRegisterRejectsDuplicatePath(t *testing.T) {
	reg := NewRegistry()
	factory := func() interface{} { return &fakeCase{opts: testcase.TestOptions{ImplPath: "pkg.MyTest"}} }

	if err := reg.Register("pkg.MyTest", factory); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register("pkg.MyTest", factory); err == nil {
		t.Errorf("expected error registering a duplicate implementation path")
	}
}

func TestResolveReturnsOnlyCaseRunnables(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.MyTest", func() interface{} {
		return &fakeCase{opts: testcase.TestOptions{ImplPath: "pkg.MyTest"}}
	})

	c, ok := reg.Resolve("pkg.MyTest")
	if !ok || c == nil {
		t.Fatalf("Resolve(pkg.MyTest) = %v, %v", c, ok)
	}
	if _, ok := reg.Resolve("pkg.Nonexistent"); ok {
		t.Errorf("Resolve should fail for an unregistered path")
	}
}

func TestPathsIsSortedRegardlessOfRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.Zebra", func() interface{} { return &fakeCase{} })
	reg.Register("pkg.Alpha", func() interface{} { return &fakeCase{} })

	got := reg.Paths()
	want := []string{"pkg.Alpha", "pkg.Zebra"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Paths = %v, want %v", got, want)
	}
}

func TestPathsSortsPrerequisiteFreeCasesFirst(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.Alpha", func() interface{} {
		return &fakeCase{opts: testcase.TestOptions{
			Prerequisites: []testcase.PrerequisiteSpec{{ImplPath: "pkg.Zebra"}},
		}}
	})
	reg.Register("pkg.Zebra", func() interface{} { return &fakeCase{} })

	got := reg.Paths()
	want := []string{"pkg.Zebra", "pkg.Alpha"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Paths = %v, want %v (prerequisite-free first despite alphabetical order)", got, want)
	}
}

func TestSelectResolvesCasesAndReportsUnknownPaths(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.MyTest", func() interface{} {
		return &fakeCase{opts: testcase.TestOptions{ImplPath: "pkg.MyTest"}}
	})

	var errored []string
	runnables := Select(reg, []Selection{
		{ImplPath: "pkg.MyTest"},
		{ImplPath: "pkg.Missing"},
	}, nil, func(path string, err error) {
		errored = append(errored, path)
	})

	if len(runnables) != 1 {
		t.Errorf("got %d runnables, want 1", len(runnables))
	}
	if len(errored) != 1 || errored[0] != "pkg.Missing" {
		t.Errorf("errored = %v, want [pkg.Missing]", errored)
	}
}

func TestSelectExpandsParamSpecs(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.Sweep", func() interface{} {
		return &fakeCase{opts: testcase.TestOptions{
			ImplPath: "pkg.Sweep",
			Params: []testcase.ParamSpec{
				{Name: "low", Args: []interface{}{1}},
				{Name: "high", Args: []interface{}{10}},
			},
		}}
	})

	runnables := Select(reg, []Selection{{ImplPath: "pkg.Sweep"}}, nil, nil)
	if len(runnables) != 2 {
		t.Fatalf("got %d runnables, want one per ParamSpec", len(runnables))
	}
}

func TestMatchingFiltersByLeafGlob(t *testing.T) {
	reg := NewRegistry()
	reg.Register("pkg.wifi.AssociateOpen", func() interface{} { return &fakeCase{} })
	reg.Register("pkg.wifi.AssociateWPA", func() interface{} { return &fakeCase{} })
	reg.Register("pkg.bluetooth.Pair", func() interface{} { return &fakeCase{} })

	got := Matching(reg, "Associate*")
	if len(got) != 2 {
		t.Errorf("Matching(Associate*) = %v, want 2 entries", got)
	}
}

func TestIsInternalDetectsUnderscorePrefixedComponents(t *testing.T) {
	if !IsInternal("pkg._helpers.Shared") {
		t.Errorf("expected pkg._helpers.Shared to be internal")
	}
	if IsInternal("pkg.wifi.AssociateOpen") {
		t.Errorf("did not expect pkg.wifi.AssociateOpen to be internal")
	}
}
