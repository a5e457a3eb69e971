package gemini

// Outbound wire shapes. The Live API accepts snake_case for setup fields
// but matches the transcription flags by their camelCase proto names, so
// the tags below mirror what the service actually tolerates.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string           `json:"model"`
	SystemInstruction        instructionBlock `json:"system_instruction"`
	GenerationConfig         generationConfig `json:"generation_config"`
	InputAudioTranscription  struct{}         `json:"inputAudioTranscription"`
	OutputAudioTranscription struct{}         `json:"outputAudioTranscription"`
}

type instructionBlock struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"response_modalities"`
	SpeechConfig       speechConfig `json:"speech_config"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// Inbound wire shapes, camelCase per the service's JSON encoding.

type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// SetupComplete is an empty marker object.
type SetupComplete struct{}

type ServerContent struct {
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

type Transcription struct {
	Text string `json:"text"`
}

type ModelTurn struct {
	Parts []ModelPart `json:"parts,omitempty"`
}

type ModelPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type UsageMetadata struct {
	PromptTokensDetails   []TokenDetail `json:"promptTokensDetails,omitempty"`
	ResponseTokensDetails []TokenDetail `json:"responseTokensDetails,omitempty"`
	ThoughtsTokenCount    int           `json:"thoughtsTokenCount,omitempty"`
}

type TokenDetail struct {
	Modality   string `json:"modality"`
	TokenCount int    `json:"tokenCount"`
}
