package domain

// CallMeta is the caller-supplied display data carried by incoming-call.
type CallMeta struct {
	CallerName   string `json:"callerName,omitempty"`
	CallerAvatar string `json:"callerAvatar,omitempty"`
	IsVideo      bool   `json:"isVideo"`
}
