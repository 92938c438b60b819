package nlu

import (
	"strings"

	"homevox/pkg/protocol"
)

// Command maps spoken keywords to a controller code and the phrase
// spoken before it is sent.
type Command struct {
	Keywords []string
	Message  string
	Lang     string
	Code     protocol.Code
}

type Table []Command

// DefaultTable is the Korean, English and Japanese command set. Order
// matters: the first matching entry wins.
func DefaultTable() Table {
	return Table{
		{Keywords: []string{"불 켜", "조명 켜", "전등 켜"}, Message: "조명을 켭니다.", Lang: "ko", Code: protocol.LedOn},
		{Keywords: []string{"불 꺼", "조명 꺼", "전등 꺼"}, Message: "조명을 끕니다.", Lang: "ko", Code: protocol.LedOff},
		{Keywords: []string{"선풍기 켜", "팬 켜"}, Message: "선풍기를 가동합니다.", Lang: "ko", Code: protocol.FanOn},
		{Keywords: []string{"선풍기 꺼", "팬 꺼"}, Message: "선풍기를 정지합니다.", Lang: "ko", Code: protocol.FanOff},
		{Keywords: []string{"문 열어", "문 열어줘"}, Message: "네, 문을 열어드릴게요.", Lang: "ko", Code: protocol.Unlock},

		{Keywords: []string{"turn on light", "lights on"}, Message: "Turning on lights.", Lang: "en", Code: protocol.LedOn},
		{Keywords: []string{"turn off light", "lights off"}, Message: "Turning off lights.", Lang: "en", Code: protocol.LedOff},
		{Keywords: []string{"turn on fan", "fan on"}, Message: "Fan started.", Lang: "en", Code: protocol.FanOn},
		{Keywords: []string{"turn off fan", "fan off"}, Message: "Fan stopped.", Lang: "en", Code: protocol.FanOff},
		{Keywords: []string{"open the door", "open door"}, Message: "Unlocking door.", Lang: "en", Code: protocol.Unlock},

		{Keywords: []string{"電気つけて", "ライトオン"}, Message: "電気をつけます。", Lang: "ja", Code: protocol.LedOn},
		{Keywords: []string{"電気消して", "ライトオフ"}, Message: "電気を消します。", Lang: "ja", Code: protocol.LedOff},
		{Keywords: []string{"扇風機つけて", "ファンオン"}, Message: "扇風機をつけます。", Lang: "ja", Code: protocol.FanOn},
		{Keywords: []string{"扇風機消して", "ファンオフ"}, Message: "扇風機を止めます。", Lang: "ja", Code: protocol.FanOff},
		{Keywords: []string{"ドア開けて", "ドアオープン"}, Message: "ドアを開けます。", Lang: "ja", Code: protocol.Unlock},
	}
}

// Prompt lists every keyword, used to bias the transcriber toward the
// command vocabulary.
func (t Table) Prompt() string {
	var kws []string
	for _, c := range t {
		kws = append(kws, c.Keywords...)
	}
	return "Commands: " + strings.Join(kws, ", ")
}

// Resolve returns the first command with a keyword contained in the
// transcript, compared case-insensitively.
func (t Table) Resolve(transcript string) (Command, bool) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return Command{}, false
	}
	for _, c := range t {
		for _, kw := range c.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return c, true
			}
		}
	}
	return Command{}, false
}
