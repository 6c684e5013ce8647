package process

import (
	"errors"
	"testing"
)

func TestValidateTemplate(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"plain", "config%d.json", false},
		{"nested dir", "test/config%d.json", false},
		{"zero padded", "node-%02d.yaml", false},
		{"left aligned", "n%-3d", false},
		{"literal percent", "100%%/cfg%d.json", false},
		{"no verb", "config.json", true},
		{"two verbs", "cfg%d-%d.json", true},
		{"string verb", "cfg%s.json", true},
		{"float verb", "cfg%f.json", true},
		{"trailing percent", "cfg%d%", true},
		{"unterminated", "cfg%02", true},
		{"empty", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTemplate(tc.template)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateTemplate(%q) error = %v, wantErr %v", tc.template, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBadTemplate) {
				t.Errorf("error should wrap ErrBadTemplate: %v", err)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	testCases := []struct {
		template string
		index    int
		expected string
	}{
		{"config%d.json", 3, "config3.json"},
		{"cfg%d.txt", 0, "cfg0.txt"},
		{"test/config%d.json", 9, "test/config9.json"},
		{"node-%02d.yaml", 7, "node-07.yaml"},
		{"100%%/cfg%d", 1, "100%/cfg1"},
	}

	for _, tc := range testCases {
		got, err := ConfigPath(tc.template, tc.index)
		if err != nil {
			t.Errorf("ConfigPath(%q, %d) unexpected error: %v", tc.template, tc.index, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("ConfigPath(%q, %d) = %q, want %q", tc.template, tc.index, got, tc.expected)
		}
	}
}

func TestConfigPath_Deterministic(t *testing.T) {
	a, _ := ConfigPath("cfg%d.txt", 5)
	b, _ := ConfigPath("cfg%d.txt", 5)
	if a != b {
		t.Errorf("same index produced different paths: %q vs %q", a, b)
	}
}

func TestNodeSpec_Argv(t *testing.T) {
	spec := NodeSpec{Command: "./reticulum", Args: []string{"-v", "-config=cfg1.json"}}
	argv := spec.Argv()
	if len(argv) != 3 || argv[0] != "./reticulum" || argv[2] != "-config=cfg1.json" {
		t.Errorf("Argv() = %v", argv)
	}

	// Argv must not alias Args
	argv[1] = "changed"
	if spec.Args[0] != "-v" {
		t.Error("Argv() should return a copy")
	}
}
