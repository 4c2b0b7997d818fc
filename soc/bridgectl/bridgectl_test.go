package bridgectl_test

import (
	"bytes"
	"io"
	"testing"

	"culvert.dev/culvert/soc/bridgectl"
)

type fakeCtl struct {
	name string
	mode bridgectl.Mode
}

func (f *fakeCtl) Name() string { return f.name }
func (f *fakeCtl) Enforce(m bridgectl.Mode) error {
	f.mode = m
	return nil
}
func (f *fakeCtl) Status() (bridgectl.Mode, error) { return f.mode, nil }
func (f *fakeCtl) Report(w io.Writer) error {
	_, err := io.WriteString(w, f.name)
	return err
}

func TestModeOrdering(t *testing.T) {
	if !(bridgectl.Permissive < bridgectl.Restricted && bridgectl.Restricted < bridgectl.Disabled) {
		t.Fatal("expected permissive < restricted < disabled")
	}
	if !bridgectl.Disabled.AtLeast(bridgectl.Restricted) {
		t.Error("disabled should be at least restricted")
	}
	if bridgectl.Permissive.AtLeast(bridgectl.Restricted) {
		t.Error("permissive should not be at least restricted")
	}
}

func TestMinIsLeastPermissive(t *testing.T) {
	ctls := []bridgectl.Controller{
		&fakeCtl{name: "a", mode: bridgectl.Permissive},
		&fakeCtl{name: "b", mode: bridgectl.Restricted},
		&fakeCtl{name: "c", mode: bridgectl.Permissive},
	}
	m, err := bridgectl.Min(ctls)
	if err != nil {
		t.Fatalf("min: %v", err)
	}
	if m != bridgectl.Restricted {
		t.Errorf("min = %v, want restricted", m)
	}
}

func TestAtLeastRequestedStrictness(t *testing.T) {
	ctls := []bridgectl.Controller{
		&fakeCtl{name: "a", mode: bridgectl.Disabled},
	}
	ok, err := bridgectl.AtLeast(ctls, bridgectl.Restricted)
	if err != nil {
		t.Fatalf("atleast: %v", err)
	}
	if !ok {
		t.Error("discovered=disabled should satisfy requested=restricted")
	}

	ctls[0].(*fakeCtl).mode = bridgectl.Permissive
	ok, err = bridgectl.AtLeast(ctls, bridgectl.Restricted)
	if err != nil {
		t.Fatalf("atleast: %v", err)
	}
	if ok {
		t.Error("discovered=permissive should not satisfy requested=restricted")
	}
}

func TestReportAll(t *testing.T) {
	var buf bytes.Buffer
	ctls := []bridgectl.Controller{&fakeCtl{name: "x"}, &fakeCtl{name: "y"}}
	if err := bridgectl.ReportAll(&buf, ctls); err != nil {
		t.Fatalf("report all: %v", err)
	}
	if buf.String() != "xy" {
		t.Errorf("got %q", buf.String())
	}
}
