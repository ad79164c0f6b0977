package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "serve"}
	BindFlags(cmd)
	return cmd
}

func TestFromCommandDefaults(t *testing.T) {
	viper.Reset()
	cmd := newTestCmd()
	_ = cmd.Flags().Set("telegram-bot-token", "tok")

	s, err := FromCommand(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.DefaultEngine != "codex" {
		t.Fatalf("expected codex default, got %v", s.DefaultEngine)
	}
	if len(s.EnabledEngines) != 4 {
		t.Fatalf("expected 4 enabled engines, got %v", s.EnabledEngines)
	}
	if s.TransportID != "telegram" {
		t.Fatalf("expected telegram transport, got %v", s.TransportID)
	}
}

func TestFromCommandRejectsMissingTelegramToken(t *testing.T) {
	viper.Reset()
	cmd := newTestCmd()

	_, err := FromCommand(cmd)
	if err == nil {
		t.Fatalf("expected error for missing telegram token")
	}
}

func TestFromCommandParsesAllowedChatIDs(t *testing.T) {
	viper.Reset()
	cmd := newTestCmd()
	_ = cmd.Flags().Set("telegram-bot-token", "tok")
	_ = cmd.Flags().Set("allowed-chat-id", "10")
	_ = cmd.Flags().Set("allowed-chat-id", "20")

	s, err := FromCommand(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.AllowedChatIDs[10] || !s.AllowedChatIDs[20] {
		t.Fatalf("expected chat ids 10 and 20 allowed, got %v", s.AllowedChatIDs)
	}
}

func TestFromCommandRejectsUnknownDefaultEngine(t *testing.T) {
	viper.Reset()
	cmd := newTestCmd()
	_ = cmd.Flags().Set("telegram-bot-token", "tok")
	_ = cmd.Flags().Set("default-engine", "nope")

	_, err := FromCommand(cmd)
	if err == nil {
		t.Fatalf("expected error for default engine not in enabled list")
	}
}
