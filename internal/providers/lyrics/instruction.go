package lyrics

import (
	"golang.org/x/text/language"
)

// DefaultLocale is used when no supported language can be negotiated.
const DefaultLocale = "es"

var supportedLocales = []language.Tag{
	language.Spanish, // first entry is the matcher fallback
	language.English,
}

var localeMatcher = language.NewMatcher(supportedLocales)

var systemInstructions = map[string]string{
	"es": "Eres una IA letrista profesional entrenada para escribir letras de canciones poéticas y rítmicas en español. " +
		"Responde únicamente con letras, usando las etiquetas [verse], [chorus], [bridge] e [instrumental] para estructurar la canción. " +
		"Usa solo la etiqueta (por ejemplo, [verse]) sin números ni texto adicional. " +
		"No agregues explicaciones ni comentarios. Responde en texto limpio, exactamente como si fuera una hoja de letras de canción.",
	"en": "You are a professional lyricist AI trained to write poetic, rhythmic song lyrics in English. " +
		"Reply with lyrics only, structuring the song with the tags [verse], [chorus], [bridge] and [instrumental]. " +
		"Use the bare tag (for example [verse]) without numbers or extra text. " +
		"Do not add explanations or comments. Reply in clean text, exactly like a lyric sheet.",
}

// MatchLocale negotiates one of the supported lyric languages from a list of
// BCP 47 tags or Accept-Language values.
func MatchLocale(preferences ...string) string {
	tag, _ := language.MatchStrings(localeMatcher, preferences...)
	base, _ := tag.Base()
	if _, ok := systemInstructions[base.String()]; ok {
		return base.String()
	}
	return DefaultLocale
}

// SystemInstruction returns the lyric-sheet instruction for locale.
func SystemInstruction(locale string) string {
	if text, ok := systemInstructions[MatchLocale(locale)]; ok {
		return text
	}
	return systemInstructions[DefaultLocale]
}
