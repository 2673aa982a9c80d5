package main

import (
	"testing"

	"devtester/internal/config"
)

func TestResolveTestbedSpecBuildsNestedEquipment(t *testing.T) {
	cfg := config.New(map[string]interface{}{
		"testbed": "lab1",
		"testbeds": map[string]interface{}{
			"lab1": map[string]interface{}{
				"attrs": map[string]interface{}{"lab": "x1"},
				"equipment": []interface{}{
					map[string]interface{}{
						"name": "dut0",
						"role": "DUT",
						"components": []interface{}{
							map[string]interface{}{"name": "dut0-power", "role": "power"},
						},
					},
				},
			},
		},
	})

	spec, err := resolveTestbedSpec(cfg)
	if err != nil {
		t.Fatalf("resolveTestbedSpec: %v", err)
	}
	if spec.Name != "lab1" {
		t.Errorf("Name = %q, want lab1", spec.Name)
	}
	if len(spec.Equipment) != 1 || spec.Equipment[0].Name != "dut0" {
		t.Fatalf("Equipment = %+v, want one row named dut0", spec.Equipment)
	}
	if len(spec.Equipment[0].Components) != 1 || spec.Equipment[0].Components[0].Name != "dut0-power" {
		t.Errorf("Equipment[0].Components = %+v, want one component named dut0-power", spec.Equipment[0].Components)
	}
}

func TestResolveTestbedSpecNoTestbedKeyIsNil(t *testing.T) {
	cfg := config.New(map[string]interface{}{"reportname": "default"})
	spec, err := resolveTestbedSpec(cfg)
	if err != nil {
		t.Fatalf("resolveTestbedSpec: %v", err)
	}
	if spec != nil {
		t.Errorf("spec = %+v, want nil when config has no testbed key", spec)
	}
}

func TestResolveTestbedSpecUnknownNameIsError(t *testing.T) {
	cfg := config.New(map[string]interface{}{"testbed": "missing"})
	if _, err := resolveTestbedSpec(cfg); err == nil {
		t.Error("expected an error for a testbed name absent from testbeds")
	}
}
