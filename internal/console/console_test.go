package console

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsole_PlainOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	c := New(&out, &errOut)

	c.Banner("SecureTools", []Field{{Label: "Model", Value: "llama3.1:8b"}, {Label: "Mode", Value: "mock"}})
	c.Success("connected")
	c.Warn("vault %s not found", "Ops")
	c.Answer("Assistant", "**12°C** in Paris")
	c.Error("boom")

	got := out.String()
	for _, want := range []string{
		"SecureTools\n",
		"Model: llama3.1:8b\n",
		"Mode: mock\n",
		"[OK] connected\n",
		"[!] vault Ops not found\n",
		"Assistant: **12°C** in Paris\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if errOut.String() != "Error: boom\n" {
		t.Errorf("stderr = %q, want %q", errOut.String(), "Error: boom\n")
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("non-terminal output should not contain escape sequences")
	}
}

func TestConsole_Prompt(t *testing.T) {
	c := New(&bytes.Buffer{}, &bytes.Buffer{})
	if got := c.Prompt("You: "); got != "You: " {
		t.Errorf("prompt = %q, want %q", got, "You: ")
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer is not a terminal")
	}
	if Width(&bytes.Buffer{}) != 80 {
		t.Error("default width should be 80")
	}
}
