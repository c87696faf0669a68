package slackcmd

import (
	"encoding/json"
	"fmt"
	"strings"
)

type slackSocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type slackEventsAPIPayload struct {
	TeamID  string          `json:"team_id,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
}

type slackEventItem struct {
	Type    string `json:"type,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

type slackEvent struct {
	Type        string         `json:"type,omitempty"`
	Subtype     string         `json:"subtype,omitempty"`
	User        string         `json:"user,omitempty"`
	Text        string         `json:"text,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	ChannelType string         `json:"channel_type,omitempty"`
	TS          string         `json:"ts,omitempty"`
	BotID       string         `json:"bot_id,omitempty"`
	Reaction    string         `json:"reaction,omitempty"`
	ItemUser    string         `json:"item_user,omitempty"`
	Item        slackEventItem `json:"item,omitempty"`
}

type slackSlashCommand struct {
	Command   string `json:"command,omitempty"`
	Text      string `json:"text,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	TriggerID string `json:"trigger_id,omitempty"`
}

type slackViewStateValue struct {
	Value         string `json:"value,omitempty"`
	SelectedUsers []string `json:"selected_users,omitempty"`
	SelectedOption struct {
		Value string `json:"value,omitempty"`
	} `json:"selected_option,omitempty"`
}

type slackViewState struct {
	Values map[string]map[string]slackViewStateValue `json:"values,omitempty"`
}

type slackView struct {
	CallbackID      string         `json:"callback_id,omitempty"`
	PrivateMetadata string         `json:"private_metadata,omitempty"`
	State           slackViewState `json:"state,omitempty"`
}

type slackInteractivePayload struct {
	Type string `json:"type,omitempty"`
	User struct {
		ID string `json:"id,omitempty"`
	} `json:"user,omitempty"`
	Team struct {
		ID string `json:"id,omitempty"`
	} `json:"team,omitempty"`
	TriggerID string    `json:"trigger_id,omitempty"`
	View      slackView `json:"view,omitempty"`
}

// parseEventsAPI extracts the inner event from an events_api envelope.
func parseEventsAPI(envelope slackSocketEnvelope) (slackEventsAPIPayload, slackEvent, bool, error) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return slackEventsAPIPayload{}, slackEvent{}, false, nil
	}
	var payload slackEventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return slackEventsAPIPayload{}, slackEvent{}, false, fmt.Errorf("decode events_api payload: %w", err)
	}
	if len(payload.Event) == 0 {
		return payload, slackEvent{}, false, nil
	}
	var event slackEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return payload, slackEvent{}, false, fmt.Errorf("decode event: %w", err)
	}
	return payload, event, true, nil
}

// parseSlashCommand extracts the command from a slash_commands envelope.
func parseSlashCommand(envelope slackSocketEnvelope) (slackSlashCommand, bool, error) {
	if strings.TrimSpace(envelope.Type) != "slash_commands" || len(envelope.Payload) == 0 {
		return slackSlashCommand{}, false, nil
	}
	var cmd slackSlashCommand
	if err := json.Unmarshal(envelope.Payload, &cmd); err != nil {
		return slackSlashCommand{}, false, fmt.Errorf("decode slash command payload: %w", err)
	}
	if strings.TrimSpace(cmd.Command) == "" {
		return slackSlashCommand{}, false, nil
	}
	return cmd, true, nil
}

// parseInteractive extracts a view submission from an interactive envelope.
func parseInteractive(envelope slackSocketEnvelope) (slackInteractivePayload, bool, error) {
	if strings.TrimSpace(envelope.Type) != "interactive" || len(envelope.Payload) == 0 {
		return slackInteractivePayload{}, false, nil
	}
	var payload slackInteractivePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return slackInteractivePayload{}, false, fmt.Errorf("decode interactive payload: %w", err)
	}
	return payload, true, nil
}

// isBotAuthored reports whether a message event came from a bot, including
// this bot itself.
func isBotAuthored(event slackEvent, botUserID string) bool {
	if strings.TrimSpace(event.BotID) != "" {
		return true
	}
	if event.Subtype == "bot_message" {
		return true
	}
	user := strings.TrimSpace(event.User)
	return user != "" && user == strings.TrimSpace(botUserID)
}

// stateValue digs one plain input value out of a submitted view state.
func stateValue(state slackViewState, blockID, actionID string) string {
	block, ok := state.Values[blockID]
	if !ok {
		return ""
	}
	v, ok := block[actionID]
	if !ok {
		return ""
	}
	if sel := strings.TrimSpace(v.SelectedOption.Value); sel != "" {
		return sel
	}
	return strings.TrimSpace(v.Value)
}

// stateUsers digs a multi-user selection out of a submitted view state.
func stateUsers(state slackViewState, blockID, actionID string) []string {
	block, ok := state.Values[blockID]
	if !ok {
		return nil
	}
	v, ok := block[actionID]
	if !ok {
		return nil
	}
	return append([]string(nil), v.SelectedUsers...)
}
