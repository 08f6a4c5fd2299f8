package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shiggityshwah/punchlist/normalize"
)

func TestNormalizeCommand_PolicyNumber(t *testing.T) {
	out := captureStdout(t, func() {
		err := newTestApp().Run([]string{"punchlist", "normalize", "policy-number",
			"--format", "json", "PN", "104-22"})
		if err != nil {
			t.Errorf("normalize failed: %v", err)
		}
	})
	var result normalize.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.IsValid {
		t.Error("a policy number with whitespace should not be valid")
	}
	if result.FixedValue != "PN104-22" {
		t.Errorf("FixedValue = %q, want PN104-22", result.FixedValue)
	}
}

func TestNormalizeCommand_ValidValueStillExitsZero(t *testing.T) {
	out := captureStdout(t, func() {
		err := newTestApp().Run([]string{"punchlist", "normalize", "named-insured",
			"--format", "json", "Smith", "&", "Sons"})
		if err != nil {
			t.Errorf("normalize failed: %v", err)
		}
	})
	var result normalize.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !result.IsValid {
		t.Errorf("Smith & Sons is already canonical, got %+v", result)
	}
}

func TestNormalizeCommand_RequiresValue(t *testing.T) {
	err := newTestApp().Run([]string{"punchlist", "normalize", "policy-number"})
	if err == nil {
		t.Fatal("expected normalize without a value to fail")
	}
	if !strings.Contains(err.Error(), "expected a value") {
		t.Errorf("error should ask for a value, got: %v", err)
	}
}
