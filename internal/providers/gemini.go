package providers

const (
	geminiCompatBase   = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultGeminiModel = "gemini-2.0-flash"
)

// NewGeminiProvider creates a Gemini provider via Google's OpenAI-compatible
// endpoint. Wire format and auth are identical to OpenAI, so it reuses
// OpenAIProvider under its own name.
func NewGeminiProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return NewOpenAIProvider("gemini", apiKey, geminiCompatBase, model)
}
