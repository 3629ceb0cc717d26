package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "v1.2.3"

	if !strings.Contains(String(), "v1.2.3") {
		t.Errorf("String() = %q", String())
	}
	if UserAgent() != "npmfence/v1.2.3" {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
	if !strings.Contains(Template(), "{{.Name}}") {
		t.Errorf("Template() = %q", Template())
	}
}
