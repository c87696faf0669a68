// Package prompt holds the prompt templates behind every generation-backed
// feature. Templates use {{...}} tokens so an operator can override single
// entries from a YAML pack without fighting format verbs.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is the full template set. Empty fields fall back to the built-ins.
type Pack struct {
	Icebreaker  string `yaml:"icebreaker"`
	Translation string `yaml:"translation"`
	PhraseOfDay string `yaml:"phrase_of_day"`
	Ask         string `yaml:"ask"`
	Relevance   string `yaml:"relevance"`
	Summary     string `yaml:"summary"`
}

const defaultIcebreaker = `Given a team name as input, your task is to create an icebreaking output designed to lighten the atmosphere and foster team bonding. The response should include:
1. A fun or encouraging statement related to the team name to set the tone at first sentence.
2. A set of questions or topics that help team members learn more about each other in a friendly, engaging way.
Given team name: {{team}}

================================================================
Example format of icebreaking; if the team name is 'Blue Hawks':

Blue Hawks always soar higher! Let's find out what makes each of us soar!
Ask your team members:
- What's your dream adventure or "soaring" moment?
- If you could pick any superpower that represents a hawk's vision or speed, what would it be and why?
- What's the best team experience you've ever had and why did it stand out?`

const defaultTranslation = `Translate the following text to {{language}}:
{{text}}
ONLY return the translated text of the given text and do not add additional words.`

const defaultPhraseOfDay = `Given a country name as input, your task is to provide a simple, everyday conversational expression or phrase commonly used in that country. Include a brief explanation of its meaning and context (e.g., greeting, thanking, casual talk). Ensure the content is fresh and different for each new request, even for the same country.

=================================================
Format the output as follows:

Country: {{country}}
Phrase: "Phrase here"
Meaning and Context: "Brief Explanation here"
Example Usage: "Example Sentence here"`

const defaultAsk = `You are a pleasant AI assistant. Answer to the given request as much as you can: {{question}}`

const defaultRelevance = `Find the information that related to keywords;{{keywords}}.
{{text}}`

const defaultSummary = `Summarize the following text in a few short sentences, keeping the key facts and dropping filler: {{text}}`

func Default() Pack {
	return Pack{
		Icebreaker:  defaultIcebreaker,
		Translation: defaultTranslation,
		PhraseOfDay: defaultPhraseOfDay,
		Ask:         defaultAsk,
		Relevance:   defaultRelevance,
		Summary:     defaultSummary,
	}
}

// Load reads a YAML pack from path and merges it over the defaults.
func Load(path string) (Pack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("read prompt pack: %w", err)
	}
	var override Pack
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Pack{}, fmt.Errorf("parse prompt pack: %w", err)
	}
	pack := Default()
	if s := strings.TrimSpace(override.Icebreaker); s != "" {
		pack.Icebreaker = s
	}
	if s := strings.TrimSpace(override.Translation); s != "" {
		pack.Translation = s
	}
	if s := strings.TrimSpace(override.PhraseOfDay); s != "" {
		pack.PhraseOfDay = s
	}
	if s := strings.TrimSpace(override.Ask); s != "" {
		pack.Ask = s
	}
	if s := strings.TrimSpace(override.Relevance); s != "" {
		pack.Relevance = s
	}
	if s := strings.TrimSpace(override.Summary); s != "" {
		pack.Summary = s
	}
	return pack, nil
}

func render(tpl string, vars map[string]string) string {
	out := tpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

func (p Pack) IcebreakerPrompt(teamName string) string {
	return render(p.Icebreaker, map[string]string{"team": teamName})
}

func (p Pack) TranslationPrompt(language, text string) string {
	return render(p.Translation, map[string]string{"language": language, "text": text})
}

func (p Pack) PhraseOfDayPrompt(country string) string {
	return render(p.PhraseOfDay, map[string]string{"country": country})
}

func (p Pack) AskPrompt(question string) string {
	return render(p.Ask, map[string]string{"question": question})
}

func (p Pack) RelevancePrompt(keywords, text string) string {
	return render(p.Relevance, map[string]string{"keywords": keywords, "text": text})
}

func (p Pack) SummaryPrompt(text string) string {
	return render(p.Summary, map[string]string{"text": text})
}
