//go:build !espeak

package tts

import "errors"

// Espeak is unavailable without the espeak build tag.
func Espeak(text, lang string) error {
	return errors.New("espeak support not built in (build with -tags espeak)")
}
