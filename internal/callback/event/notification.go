package event

import "encoding/json"

// EventTypeWorkflowTask is the only top-level event category this service
// records; every other category is acknowledged and ignored.
const EventTypeWorkflowTask = "WorkflowTask"

// Notification is the top-level callback body posted by the media pipeline.
// The inner event is kept raw so that a structurally broken payload can be
// classified as malformed without failing the transport-level decode.
type Notification struct {
	EventType         string          `json:"EventType"`
	SessionContext    string          `json:"SessionContext"`
	WorkflowTaskEvent json.RawMessage `json:"WorkflowTaskEvent"`
}

// workflowTaskEvent is the payload of a WorkflowTask notification. It carries
// one of two shapes: a de-watermark result set (AiAnalysisResultSet) or a
// speech-to-text result set (SmartSubtitlesTaskResult).
type workflowTaskEvent struct {
	TaskID                   string             `json:"TaskId"`
	Status                   string             `json:"Status"`
	InputInfo                inputInfo          `json:"InputInfo"`
	AiAnalysisResultSet      []analysisResult   `json:"AiAnalysisResultSet"`
	SmartSubtitlesTaskResult []smartSubtitleRes `json:"SmartSubtitlesTaskResult"`
}

type inputInfo struct {
	URLInputInfo urlInputInfo `json:"UrlInputInfo"`
}

type urlInputInfo struct {
	URL string `json:"Url"`
}

type analysisResult struct {
	Type       string     `json:"Type"`
	DeLogoTask deLogoTask `json:"DeLogoTask"`
}

type deLogoTask struct {
	Status string       `json:"Status"`
	Output deLogoOutput `json:"Output"`
}

type deLogoOutput struct {
	Path                  string `json:"Path"`
	OriginSubtitlePath    string `json:"OriginSubtitlePath"`
	TranslateSubtitlePath string `json:"TranslateSubtitlePath"`
}

type smartSubtitleRes struct {
	Type            string          `json:"Type"`
	AsrFullTextTask asrFullTextTask `json:"AsrFullTextTask"`
}

type asrFullTextTask struct {
	Output asrOutput `json:"Output"`
}

type asrOutput struct {
	SubtitlePath string `json:"SubtitlePath"`
}
