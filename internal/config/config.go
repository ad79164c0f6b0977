// Package config resolves the structured settings object spec §6 asks
// for: default_engine, per-engine overrides, enabled runner ids, transport
// id, allowed-chat-id list. Values come from cobra flags layered over
// viper-bound env vars and an optional config file.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/takopierr"
)

// EngineOverride lets an operator point a registered engine id at a
// non-default binary or inject extra environment, without touching the
// built-in argv-building logic in internal/runner.
type EngineOverride struct {
	Command string
	Env     []string
}

// Settings is the fully-resolved configuration for one serve invocation.
type Settings struct {
	DefaultEngine  model.EngineID
	EnabledEngines []model.EngineID
	EngineOverride map[model.EngineID]EngineOverride

	TransportID    string
	TelegramToken  string
	AllowedChatIDs map[int64]bool

	Debug bool
}

// BindFlags registers the flags Settings reads from, and binds each one to
// its viper key so TAKOPI_-prefixed env vars and a config file both work
// alongside the flag itself. Call once, on the serve command.
func BindFlags(cmd *cobra.Command) {
	cmd.Flags().String("default-engine", "codex", "Engine used when no prefix or resume token is present.")
	cmd.Flags().StringSlice("engines", []string{"codex", "claude", "opencode", "pi"}, "Engine ids to register as runners.")
	cmd.Flags().String("transport", "telegram", "Transport backend id.")
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().StringSlice("allowed-chat-id", nil, "Chat ids allowed to use the bot (repeatable); empty means no restriction.")
	cmd.Flags().Bool("debug", false, "Raise log verbosity to debug.")

	_ = viper.BindPFlag("default_engine", cmd.Flags().Lookup("default-engine"))
	_ = viper.BindPFlag("engines", cmd.Flags().Lookup("engines"))
	_ = viper.BindPFlag("transport", cmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("telegram.allowed_chat_ids", cmd.Flags().Lookup("allowed-chat-id"))
	_ = viper.BindPFlag("debug", cmd.Flags().Lookup("debug"))
}

// FromCommand resolves Settings from cmd's flags and viper, validating the
// results a startup check needs (spec §6: non-zero exit on config invalid).
func FromCommand(cmd *cobra.Command) (Settings, error) {
	s := Settings{
		DefaultEngine:  model.EngineID(flagOrViperString(cmd, "default-engine", "default_engine")),
		TransportID:    flagOrViperString(cmd, "transport", "transport"),
		TelegramToken:  flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"),
		Debug:          flagOrViperBool(cmd, "debug", "debug"),
		EngineOverride: map[model.EngineID]EngineOverride{},
	}

	for _, id := range flagOrViperStringSlice(cmd, "engines", "engines") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s.EnabledEngines = append(s.EnabledEngines, model.EngineID(id))
	}
	if len(s.EnabledEngines) == 0 {
		return Settings{}, fmt.Errorf("%w: no engines enabled", takopierr.ErrConfig)
	}

	if s.DefaultEngine == "" {
		return Settings{}, fmt.Errorf("%w: default_engine is required", takopierr.ErrConfig)
	}
	if !contains(s.EnabledEngines, s.DefaultEngine) && s.DefaultEngine != "mock" {
		return Settings{}, fmt.Errorf("%w: default_engine %q is not in the enabled engine list", takopierr.ErrConfig, s.DefaultEngine)
	}

	if s.TransportID == "" {
		return Settings{}, fmt.Errorf("%w: transport is required", takopierr.ErrConfig)
	}
	if s.TransportID == "telegram" && strings.TrimSpace(s.TelegramToken) == "" {
		return Settings{}, fmt.Errorf("%w: telegram transport requires telegram.bot_token", takopierr.ErrConfig)
	}

	allowed := flagOrViperStringSlice(cmd, "allowed-chat-id", "telegram.allowed_chat_ids")
	if len(allowed) > 0 {
		s.AllowedChatIDs = map[int64]bool{}
		for _, raw := range allowed {
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return Settings{}, fmt.Errorf("%w: invalid allowed chat id %q: %v", takopierr.ErrConfig, raw, err)
			}
			s.AllowedChatIDs[id] = true
		}
	}

	for _, id := range s.EnabledEngines {
		prefix := "engine_overrides." + string(id)
		if !viper.IsSet(prefix + ".command") {
			continue
		}
		s.EngineOverride[id] = EngineOverride{
			Command: viper.GetString(prefix + ".command"),
			Env:     viper.GetStringSlice(prefix + ".env"),
		}
	}

	return s, nil
}

func contains(ids []model.EngineID, id model.EngineID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
