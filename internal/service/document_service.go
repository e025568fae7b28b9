package service

import (
	"context"
	"fmt"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/dto"
	"itinerary-collab-be/pkg/compiler"
	"itinerary-collab-be/pkg/document"
)

type IDocumentService interface {
	Show(ctx context.Context, documentID string) (*dto.DocumentResponse, error)
	Compile(ctx context.Context, documentID string, req *dto.CompileRequest) (*dto.CompileResponse, error)
}

type documentService struct {
	registry *collab.Registry
}

func NewDocumentService(registry *collab.Registry) IDocumentService {
	return &documentService{registry: registry}
}

func (s *documentService) Show(ctx context.Context, documentID string) (*dto.DocumentResponse, error) {
	_, live := s.registry.Get(documentID)
	doc, version, err := s.registry.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	html, err := compiler.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", documentID, err)
	}
	return &dto.DocumentResponse{
		DocumentId: documentID,
		Version:    version,
		Live:       live,
		Document:   doc,
		Html:       html,
	}, nil
}

// Compile previews markup against the current document. Nothing is
// submitted.
func (s *documentService) Compile(ctx context.Context, documentID string, req *dto.CompileRequest) (*dto.CompileResponse, error) {
	doc, version, err := s.registry.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}

	mode := compiler.Mode(req.Mode)
	if mode == "" {
		mode = compiler.ModeAppend
		if document.IsEmptyDoc(doc) {
			mode = compiler.ModeReplaceEmpty
		}
	}
	pos := compiler.AppendAtEnd
	if req.AppendPosition != nil {
		pos = *req.AppendPosition
	}

	res, err := compiler.CompileDocument(req.Markup, doc, mode, pos)
	if err != nil {
		return nil, err
	}
	return &dto.CompileResponse{
		Mode:        string(mode),
		BaseVersion: version,
		Steps:       res.Steps,
		Document:    res.Document,
	}, nil
}
