package cli

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestPromptPasswordPipedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hunter2\n", "hunter2"},
		{"with spaces", "correct horse battery staple\n", "correct horse battery staple"},
		{"crlf", "secret\r\n", "secret"},
		{"no trailing newline", "secret", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tt.input))
			cmd.SetErr(io.Discard)

			got, err := promptPassword(cmd, "Password: ")
			if err != nil {
				t.Fatalf("promptPassword: %v", err)
			}
			if got != tt.want {
				t.Errorf("promptPassword = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPromptPasswordEmptyInput(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))
	cmd.SetErr(io.Discard)

	if _, err := promptPassword(cmd, "Password: "); err == nil {
		t.Fatal("expected error for empty input")
	}
}
