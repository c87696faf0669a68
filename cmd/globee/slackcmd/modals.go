package slackcmd

import (
	"encoding/json"
	"fmt"
)

// Minimal Block Kit subset covering the modals the bot opens.

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func plainText(text string) *slackText {
	return &slackText{Type: "plain_text", Text: text, Emoji: true}
}

type slackOption struct {
	Text  *slackText `json:"text"`
	Value string     `json:"value"`
}

func staticOptions(values ...string) []slackOption {
	opts := make([]slackOption, 0, len(values))
	for _, v := range values {
		opts = append(opts, slackOption{Text: plainText(v), Value: v})
	}
	return opts
}

type slackElement struct {
	Type             string        `json:"type"`
	ActionID         string        `json:"action_id,omitempty"`
	Placeholder      *slackText    `json:"placeholder,omitempty"`
	Multiline        bool          `json:"multiline,omitempty"`
	MinValue         string        `json:"min_value,omitempty"`
	IsDecimalAllowed *bool         `json:"is_decimal_allowed,omitempty"`
	Options          []slackOption `json:"options,omitempty"`
	InitialUsers     []string      `json:"initial_users,omitempty"`
}

type slackBlock struct {
	Type     string        `json:"type"`
	BlockID  string        `json:"block_id,omitempty"`
	Label    *slackText    `json:"label,omitempty"`
	Element  *slackElement `json:"element,omitempty"`
	Optional bool          `json:"optional,omitempty"`
}

type slackModalView struct {
	Type            string       `json:"type"`
	CallbackID      string       `json:"callback_id"`
	PrivateMetadata string       `json:"private_metadata,omitempty"`
	Title           *slackText   `json:"title"`
	Submit          *slackText   `json:"submit"`
	Close           *slackText   `json:"close"`
	Blocks          []slackBlock `json:"blocks"`
}

const (
	networkModalCallbackID = "network_modal"
	welcomeModalCallbackID = "welcome_info_modal"
	tradeModalCallbackID   = "trade_info_modal"
	adminModalCallbackID   = "admin_info_modal"
)

// modalMetadata carries the invoking channel through a modal round trip.
type modalMetadata struct {
	ChannelID string `json:"channel_id"`
}

// newNetworkModal builds the group-formation form. The invoking channel id
// rides along in private_metadata so the submission can resolve members and
// post the summary back where the command ran.
func newNetworkModal(channelID string, memberIDs []string) (slackModalView, error) {
	meta, err := json.Marshal(modalMetadata{ChannelID: channelID})
	if err != nil {
		return slackModalView{}, fmt.Errorf("encode modal metadata: %w", err)
	}
	// initial_users is capped by Slack.
	if len(memberIDs) > 100 {
		memberIDs = memberIDs[:100]
	}
	decimalsOff := false
	return slackModalView{
		Type:            "modal",
		CallbackID:      networkModalCallbackID,
		PrivateMetadata: string(meta),
		Title:           plainText("네트워킹 조 편성"),
		Submit:          plainText("편성하기"),
		Close:           plainText("취소"),
		Blocks: []slackBlock{
			{
				Type:    "input",
				BlockID: "network_name_block",
				Label:   plainText("네트워킹 이름"),
				Element: &slackElement{
					Type:        "plain_text_input",
					ActionID:    "network_name_input",
					Placeholder: plainText("예: 해커톤"),
				},
			},
			{
				Type:    "input",
				BlockID: "team_count_block",
				Label:   plainText("조 개수"),
				Element: &slackElement{
					Type:             "number_input",
					ActionID:         "team_count_input",
					MinValue:         "1",
					IsDecimalAllowed: &decimalsOff,
				},
			},
			{
				Type:     "input",
				BlockID:  "info_block",
				Label:    plainText("추가 안내"),
				Optional: true,
				Element: &slackElement{
					Type:      "plain_text_input",
					ActionID:  "info_input",
					Multiline: true,
				},
			},
			{
				Type:    "input",
				BlockID: "include_users_block",
				Label:   plainText("참여 멤버"),
				Element: &slackElement{
					Type:         "multi_users_select",
					ActionID:     "include_users_select",
					InitialUsers: memberIDs,
				},
			},
		},
	}, nil
}

// newWelcomeModal builds the self-introduction form.
func newWelcomeModal() slackModalView {
	return slackModalView{
		Type:       "modal",
		CallbackID: welcomeModalCallbackID,
		Title:      plainText("자기소개"),
		Submit:     plainText("제출"),
		Close:      plainText("취소"),
		Blocks: []slackBlock{
			{
				Type:    "input",
				BlockID: "name_block",
				Label:   plainText("이름"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "name_input"},
			},
			{
				Type:    "input",
				BlockID: "gender_block",
				Label:   plainText("성별"),
				Element: &slackElement{
					Type:     "static_select",
					ActionID: "gender_select",
					Options:  staticOptions("남성", "여성", "기타"),
				},
			},
			{
				Type:    "input",
				BlockID: "age_block",
				Label:   plainText("나이"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "age_input"},
			},
			{
				Type:    "input",
				BlockID: "nationality_block",
				Label:   plainText("국적"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "nationality_input"},
			},
			{
				Type:    "input",
				BlockID: "alma_mater_block",
				Label:   plainText("출신 학교"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "alma_mater_input"},
			},
		},
	}
}

// newTradeModal builds the marketplace posting form. The invoking channel
// rides along so the posting lands where the command ran.
func newTradeModal(channelID string) (slackModalView, error) {
	meta, err := json.Marshal(modalMetadata{ChannelID: channelID})
	if err != nil {
		return slackModalView{}, fmt.Errorf("encode modal metadata: %w", err)
	}
	return slackModalView{
		Type:            "modal",
		CallbackID:      tradeModalCallbackID,
		PrivateMetadata: string(meta),
		Title:           plainText("중고거래 판매글"),
		Submit:          plainText("올리기"),
		Close:           plainText("취소"),
		Blocks: []slackBlock{
			{
				Type:    "input",
				BlockID: "item_name_block",
				Label:   plainText("상품명"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "item_name_input"},
			},
			{
				Type:    "input",
				BlockID: "condition_block",
				Label:   plainText("상태"),
				Element: &slackElement{
					Type:     "static_select",
					ActionID: "condition_select",
					Options:  staticOptions("새 제품", "약간 사용", "사용감 있음"),
				},
			},
			{
				Type:    "input",
				BlockID: "price_block",
				Label:   plainText("가격"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "price_input"},
			},
			{
				Type:    "input",
				BlockID: "place_block",
				Label:   plainText("거래 장소"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "place_input"},
			},
			{
				Type:     "input",
				BlockID:  "description_block",
				Label:    plainText("설명"),
				Optional: true,
				Element:  &slackElement{Type: "plain_text_input", ActionID: "description_input", Multiline: true},
			},
		},
	}, nil
}

// newAdminModal builds the workspace settings form.
func newAdminModal() slackModalView {
	return slackModalView{
		Type:       "modal",
		CallbackID: adminModalCallbackID,
		Title:      plainText("워크스페이스 설정"),
		Submit:     plainText("저장"),
		Close:      plainText("취소"),
		Blocks: []slackBlock{
			{
				Type:    "input",
				BlockID: "country_block",
				Label:   plainText("국가"),
				Element: &slackElement{
					Type:        "plain_text_input",
					ActionID:    "country_input",
					Placeholder: plainText("예: korea"),
				},
			},
			{
				Type:    "input",
				BlockID: "university_block",
				Label:   plainText("학교"),
				Element: &slackElement{Type: "plain_text_input", ActionID: "university_input"},
			},
		},
	}
}
