package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("version output %q does not mention %q", out.String(), version)
	}
}

func TestConvertRejectsUnknownDendrite(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"convert", "--dendrites", "apical"})
	err := root.Execute()
	if err == nil {
		t.Fatal("convert with unknown dendrite should fail")
	}
	var uerr *usageError
	if !errors.As(err, &uerr) {
		t.Errorf("expected a usage error, got %T: %v", err, err)
	}
}

func TestConvertRejectsMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"convert", "--config", "no-such-session.yaml"})
	err := root.Execute()
	if err == nil {
		t.Fatal("convert without a config file should fail")
	}
	var uerr *usageError
	if !errors.As(err, &uerr) {
		t.Errorf("expected a usage error, got %T: %v", err, err)
	}
}
