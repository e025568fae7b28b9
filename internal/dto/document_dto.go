package dto

import (
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/pkg/document"
)

type DocumentResponse struct {
	DocumentId string         `json:"document_id"`
	Version    int            `json:"version"`
	Live       bool           `json:"live"`
	Document   *document.Node `json:"document"`
	Html       string         `json:"html"`
}

type CompileRequest struct {
	Markup string `json:"markup" validate:"required,max=200000"`
	// Mode defaults to replace-empty for an empty document and append otherwise.
	Mode           string `json:"mode" validate:"omitempty,oneof=replace-empty append"`
	AppendPosition *int   `json:"append_position" validate:"omitempty,gte=0"`
}

type CompileResponse struct {
	Mode        string          `json:"mode"`
	BaseVersion int             `json:"base_version"`
	Steps       []document.Step `json:"steps"`
	Document    *document.Node  `json:"document"`
}

type CompileErrorResponse struct {
	Kind      string `json:"kind"`
	StepIndex *int   `json:"step_index,omitempty"`
	Message   string `json:"message"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Mode    string `json:"mode"`
	Steps   int    `json:"steps"`
	Version int    `json:"version"`
}

type OpsStatsResponse struct {
	Users           int      `json:"users"`
	Connections     int      `json:"connections"`
	ActiveDocuments []string `json:"active_documents"`
}

type LogListResponse struct {
	Logs   []logger.LogEntry `json:"logs"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
