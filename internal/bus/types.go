package bus

// IngressEvent is one inbound customer message delivered by the upstream
// webhook bridge. The bridge owns the WhatsApp protocol; this process only
// sees decoded events.
type IngressEvent struct {
	InstanceID  string            `json:"instance_id"`
	RemoteJID   string            `json:"remote_jid"` // customer identity, e.g. "5511999990000@s.whatsapp.net"
	PushName    string            `json:"push_name,omitempty"`
	MessageID   string            `json:"message_id"`
	Text        string            `json:"text"`
	Kind        string            `json:"kind,omitempty"` // "text", "audio", "image", ...
	Credentials Credentials       `json:"credentials"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Credentials identifies a channel instance at the outbound gateway.
type Credentials struct {
	InstanceID  string `json:"instance_id"`
	Token       string `json:"token"`
	ClientToken string `json:"client_token,omitempty"`
}
