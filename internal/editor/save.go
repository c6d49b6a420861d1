package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

// Messages shown after a save
const (
	SavedMessage      = "Template saved successfully"
	SaveFailedMessage = "Failed to save template. Please try again."
)

// SaveRequest is the body of the template update call
type SaveRequest struct {
	TemplateID     string `json:"templateId"`
	UserID         string `json:"userId"`
	TemplateDesign string `json:"templateDesign"`
}

// Saver persists a serialized design and returns the confirmation message
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (string, error)
}

// SaverFunc adapts a function to Saver
type SaverFunc func(ctx context.Context, req SaveRequest) (string, error)

func (f SaverFunc) Save(ctx context.Context, req SaveRequest) (string, error) {
	return f(ctx, req)
}

// FileSaver writes the design markup to a local file
type FileSaver struct {
	Path string
}

func (f FileSaver) Save(ctx context.Context, req SaveRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(req.TemplateDesign), 0644); err != nil {
		return "", fmt.Errorf("failed to write template: %w", err)
	}
	return "Saved to " + f.Path, nil
}

// Save serializes the design with the canonical page size and submits it.
// The call is bounded by both ctx and the session: Close cancels it, and a
// completion that arrives after Close leaves the session untouched.
// On failure the edits stay in place so the user can retry.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return ErrClosed
	case Saving:
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	if s.saver == nil {
		s.mu.Unlock()
		return fmt.Errorf("no saver configured")
	}

	s.design.PageSize = designformat.CanonicalPageSize
	markup, err := designformat.Serialize(s.design)
	if err != nil {
		s.logger.Warn("template serialize failed", zap.Error(err))
		s.notify(NoticeError, SaveFailedMessage)
		s.mu.Unlock()
		return fmt.Errorf("failed to serialize design: %w", err)
	}
	s.state = Saving
	s.drag = dragState{}
	req := SaveRequest{
		TemplateID:     s.templateID,
		UserID:         s.identity.UserID(),
		TemplateDesign: markup,
	}
	s.mu.Unlock()

	saveCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	msg, saveErr := s.saver.Save(saveCtx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return ErrClosed
	}
	if saveErr != nil {
		s.logger.Warn("template save failed", zap.Error(saveErr))
		s.state = Idle
		s.selected = -1
		s.notify(NoticeError, SaveFailedMessage)
		return fmt.Errorf("failed to save template: %w", saveErr)
	}

	if msg == "" {
		msg = SavedMessage
	}
	s.logger.Info("template saved", zap.Int("bytes", len(markup)))
	s.state = Parsed
	s.selected = -1
	s.dirty = false
	s.notify(NoticeSuccess, msg)
	return nil
}
