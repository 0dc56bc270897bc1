package mcp

import "encoding/json"

// ResponseKind tags which shape a ToolResponse was normalised from.
type ResponseKind string

const (
	// KindStructuredMap: the raw response was already a mapping.
	KindStructuredMap ResponseKind = "structured_map"
	// KindDataAttrMap: the raw response had a `data` mapping attribute.
	KindDataAttrMap ResponseKind = "data_attr_map"
	// KindContentTextList: the raw response had a `content` list whose
	// first element carried a textual JSON payload.
	KindContentTextList ResponseKind = "content_text_list"
)

// ToolResponse is the single normalised shape every downstream caller
// (executor, agent façade argument injection) consumes. It is constructed
// once at the MCP client boundary from whichever of the three wire shapes
// the tool server returned, removing conditional shape-sniffing from every
// consumer.
type ToolResponse struct {
	Kind    ResponseKind
	Data    map[string]any
	Raw     json.RawMessage
}

// Success decodes the authoritative success flag: if Data has a `success`
// field it wins, otherwise success is assumed true (the caller already
// knows whether a transport error or exception occurred).
func (r *ToolResponse) Success() bool {
	if r == nil {
		return false
	}
	if v, ok := r.Data["success"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return true
}

// ErrorText extracts an `error` field from Data, if present.
func (r *ToolResponse) ErrorText() string {
	if r == nil {
		return ""
	}
	if v, ok := r.Data["error"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// normaliseToolResult builds a ToolResponse from the raw tools/call result.
// Accepted shapes, in order: (a) mapping with at least a `success` boolean,
// (b) object with `data` = mapping, (c) object with `content` = list whose
// first element has a `text` field containing JSON.
func normaliseToolResult(raw json.RawMessage) *ToolResponse {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err == nil {
		if data, ok := generic["data"].(map[string]any); ok {
			return &ToolResponse{Kind: KindDataAttrMap, Data: data, Raw: raw}
		}
		if _, hasContent := generic["content"]; !hasContent {
			return &ToolResponse{Kind: KindStructuredMap, Data: generic, Raw: raw}
		}
	}

	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err == nil && len(result.Content) > 0 {
		text := result.Content[0].Text
		var parsed map[string]any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			return &ToolResponse{Kind: KindContentTextList, Data: parsed, Raw: raw}
		}
		return &ToolResponse{
			Kind: KindContentTextList,
			Data: map[string]any{"success": !result.IsError, "output": text},
			Raw:  raw,
		}
	}

	if generic != nil {
		return &ToolResponse{Kind: KindStructuredMap, Data: generic, Raw: raw}
	}
	return &ToolResponse{Kind: KindStructuredMap, Data: map[string]any{"success": true}, Raw: raw}
}
