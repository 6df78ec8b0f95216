package model

import "strings"

// DocumentClass describes one kind of ingested business document. Each class
// owns a Durable Store namespace (Prefix) and a single persisted index (IndexKey).
type DocumentClass struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Extension string `json:"extension"`
	Prefix    string `json:"prefix"`
	IndexKey  string `json:"index_key"`
	Limit     int    `json:"limit"`
}

func (c DocumentClass) Matches(filename string) bool {
	if c.Extension == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(filename), strings.ToLower(c.Extension))
}

func (c DocumentClass) DocumentKey(filename string) string {
	return c.Prefix + filename
}

type SourceMessage struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	ReceivedOrder int    `json:"received_order"`
}

type Attachment struct {
	Filename        string `json:"filename"`
	Content         []byte `json:"-"`
	SourceMessageID string `json:"source_message_id"`
}

type StoredDocument struct {
	Key       string `json:"key"`
	LocalPath string `json:"local_path,omitempty"`
	RemoteKey string `json:"remote_key,omitempty"`
}
