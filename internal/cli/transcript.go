package cli

import "strings"

func isBlankTranscript(transcript string) bool {
	return strings.TrimSpace(transcript) == ""
}

func noSpeechHint() string {
	return "No speech detected. The video may have no audio track or only music."
}
