package nlu

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Fallback is spoken whenever the model cannot produce an answer.
const Fallback = "죄송합니다. 처리 중 오류가 발생했습니다."

var errNoKey = errors.New("no API key configured")

// Completer runs one system+user exchange against a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Weather returns a one-line description of the current local weather.
type Weather interface {
	Lookup(ctx context.Context) string
}

var weatherKeywords = []string{"날씨", "weather", "天気", "tenki"}

var langInstructions = map[string]string{
	"ko": "한국어로 간결하게 답변.",
	"en": "Answer briefly in English.",
	"ja": "日本語で簡潔に答えて。",
}

const defaultInstruction = "한국어로 답변."

const systemPrompt = `역할: 스마트홈 AI 비서.
지침: 서론 없이 핵심만 1~2문장으로 답변할 것.
언어설정: %s`

// Assistant answers free-form questions that did not match a command.
type Assistant struct {
	llm     Completer
	weather Weather
}

// NewAssistant builds an assistant. A nil llm makes every answer the
// fallback phrase; a nil weather disables context injection.
func NewAssistant(llm Completer, weather Weather) *Assistant {
	return &Assistant{llm: llm, weather: weather}
}

// Ask never fails: errors are logged and replaced by Fallback.
func (a *Assistant) Ask(ctx context.Context, text, lang string) string {
	log.Info("Asking assistant", "text", text, "lang", lang)

	answer, err := a.ask(ctx, text, lang)
	if err != nil {
		log.Error("Assistant query failed", "err", err)
		return Fallback
	}
	return answer
}

func (a *Assistant) ask(ctx context.Context, text, lang string) (string, error) {
	if a.llm == nil {
		return "", errNoKey
	}

	system := BuildSystemPrompt(lang, a.weatherContext(ctx, text))
	out, err := a.llm.Complete(ctx, system, text)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty message content")
	}
	return out, nil
}

func (a *Assistant) weatherContext(ctx context.Context, text string) string {
	if a.weather == nil || !mentionsWeather(text) {
		return ""
	}
	w := a.weather.Lookup(ctx)
	log.Debug("Weather context injected", "weather", w)
	return "참고 정보: " + w
}

func mentionsWeather(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range weatherKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// BuildSystemPrompt renders the instruction block for lang, with an
// optional extra context line.
func BuildSystemPrompt(lang, extra string) string {
	instr, ok := langInstructions[lang]
	if !ok {
		instr = defaultInstruction
	}
	p := fmt.Sprintf(systemPrompt, instr)
	if extra != "" {
		p += "\n" + extra
	}
	return p
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	log.Debug("Processed", "data", content)
	return content, nil
}
