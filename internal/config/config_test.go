package config

import (
	"os"
	"path/filepath"
	"testing"

	"devtester/internal/errors"
	"devtester/testutil"
)

const sampleYAML = `
flags:
 debug: 1
 verbose: 2
 stderr: false
testbed: lab1
reportname: default,database
`

func TestLoadAndGet(t *testing.T) {
	tr, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, err := tr.GetInt("flags.debug")
	if err != nil || n != 1 {
		t.Errorf("flags.debug = %v, %v; want 1, nil", n, err)
	}
	s, err := tr.GetString("testbed")
	if err != nil || s != "lab1" {
		t.Errorf("testbed = %v, %v; want lab1, nil", s, err)
	}
	b, err := tr.GetBool("flags.stderr")
	if err != nil || b != false {
		t.Errorf("flags.stderr = %v, %v; want false, nil", b, err)
	}
}

func TestUnknownKeyIsStrict(t *testing.T) {
	tr, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := tr.Get("flags.typo"); err == nil {
		t.Fatalf("expected ConfigNotFoundError for unknown key")
	} else if !errors.As(err, new(*errors.ConfigNotFoundError)) {
		t.Errorf("got %T, want *errors.ConfigNotFoundError", err)
	}
}

func TestOrDefaultsOnlyAppliesToAbsence(t *testing.T) {
	tr, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := tr.IntOr("flags.missing", 7)
	if err != nil || v != 7 {
		t.Errorf("IntOr(missing) = %v, %v; want 7, nil", v, err)
	}
	// Present but wrong type must still error, not silently fall back.
	if _, err := tr.IntOr("testbed", 7); err == nil {
		t.Errorf("IntOr on a string-typed key should still error")
	}
}

func TestNestedListMapsAreNormalized(t *testing.T) {
	tr, err := Load([]byte(`
testbeds:
  lab1:
    equipment:
    - name: dut0
      role: DUT
      attrs:
        ip: 192.0.2.1
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	row, err := tr.Get("testbeds.lab1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := row.(map[string]interface{})
	if !ok {
		t.Fatalf("testbeds.lab1 = %#v (%T), want map[string]interface{}", row, row)
	}
	equipment, ok := m["equipment"].([]interface{})
	if !ok || len(equipment) != 1 {
		t.Fatalf("equipment = %#v, want a one-element list", m["equipment"])
	}
	// yaml.v2 decodes map entries inside a list as map[interface{}]interface{};
	// normalize must recurse into list elements too, not just top-level maps,
	// or a list of equipment rows would come back un-stringified.
	e, ok := equipment[0].(map[string]interface{})
	if !ok {
		t.Fatalf("equipment[0] = %#v (%T), want map[string]interface{}", equipment[0], equipment[0])
	}
	if e["name"] != "dut0" || e["role"] != "DUT" {
		t.Errorf("equipment[0] = %#v, want name=dut0 role=DUT", e)
	}
	attrs, ok := e["attrs"].(map[string]interface{})
	if !ok || attrs["ip"] != "192.0.2.1" {
		t.Errorf("equipment[0].attrs = %#v, want ip=192.0.2.1", e["attrs"])
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := testutil.TempDir(t)
	defer os.RemoveAll(dir)
	if err := testutil.WriteFiles(dir, map[string]string{"devtester.yaml": sampleYAML}); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "devtester.yaml"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	tr, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, err := tr.GetString("reportname")
	if err != nil || s != "default,database" {
		t.Errorf("reportname = %v, %v; want default,database, nil", s, err)
	}
}
