package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

func (img Image) payload() provider.Image {
	return provider.Image{
		Name:        img.Name,
		ContentType: img.ContentType,
		Data:        img.Data,
	}
}

func imageMetadata(slot domain.Slot, img Image) map[string]string {
	return map[string]string{
		"slot":       slot.String(),
		"image_id":   img.ID.String(),
		"image_size": strconv.Itoa(len(img.Data)),
	}
}

// SubmitCompare verifies the two slot images with the current selection.
// Nothing is sent unless both slots are filled and the threshold parses.
// The result is applied only if the tab and both images are unchanged when
// the response arrives; a stale result is still returned to the caller.
func (s *Session) SubmitCompare(ctx context.Context) (*domain.ComparisonResult, error) {
	s.mu.Lock()
	one, two := s.images[domain.SlotOne], s.images[domain.SlotTwo]
	if one == nil || two == nil {
		s.mu.Unlock()
		return nil, s.reject(domain.ErrMissingImages)
	}
	threshold, err := parseThreshold(s.selection.Threshold)
	if err != nil {
		s.mu.Unlock()
		return nil, s.reject(domain.ErrInvalidThreshold.WithError(err))
	}

	req := provider.CompareRequest{
		Image1:    one.payload(),
		Image2:    two.payload(),
		Model:     s.selection.Model,
		Metric:    s.selection.Metric,
		Threshold: threshold,
		Detector:  s.selection.Detector,
	}
	ids := [2]uuid.UUID{one.ID, two.ID}
	backend := s.backend
	s.comparison = nil
	s.notice = nil
	s.pending++
	s.mu.Unlock()
	defer s.settle()

	start := time.Now()
	res, err := backend.Compare(ctx, req)
	if err == nil && res == nil {
		err = fmt.Errorf("compare: %w", provider.ErrInvalidResponse)
	}
	s.audit(ctx, audit.EventFacesCompared, start, err == nil && res.Success, err, map[string]string{
		"model":     req.Model,
		"metric":    string(req.Metric),
		"threshold": strconv.FormatFloat(threshold, 'f', -1, 64),
		"image1_id": ids[0].String(),
		"image2_id": ids[1].String(),
	})
	current := func() bool {
		return s.tab == domain.TabMatch && s.currentLocked(domain.SlotOne, ids[0]) && s.currentLocked(domain.SlotTwo, ids[1])
	}
	if err != nil {
		return nil, s.fail("compare", err, current)
	}
	if !res.Success {
		return nil, s.rejectIf(current, domain.ErrMatchFailed)
	}

	s.mu.Lock()
	if !current() {
		s.mu.Unlock()
		s.logger.Debug("discarding stale comparison",
			slog.String("image1_id", ids[0].String()),
			slog.String("image2_id", ids[1].String()),
		)
		return res, nil
	}
	s.comparison = res
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventResultCompare, res)

	return res, nil
}

// SubmitLiveness checks the slot one image with the current detector
func (s *Session) SubmitLiveness(ctx context.Context) (*domain.LivenessResult, error) {
	backend, img, detector, err := s.beginSingle()
	if err != nil {
		return nil, err
	}
	defer s.settle()

	res, err := s.checkLiveness(ctx, backend, domain.SlotOne, img, detector)
	if err != nil {
		return nil, s.fail("liveness check", err, s.holds(domain.SlotOne, img.ID))
	}
	return res, nil
}

// SubmitAnalyze analyzes the slot one image. A nil result with a nil error
// means the service found no face.
func (s *Session) SubmitAnalyze(ctx context.Context) (*domain.AnalyzeResult, error) {
	backend, img, _, err := s.beginSingle()
	if err != nil {
		return nil, err
	}
	defer s.settle()

	res, err := s.analyze(ctx, backend, domain.SlotOne, img)
	if err != nil {
		return nil, s.fail("analyze", err, s.holds(domain.SlotOne, img.ID))
	}
	return res, nil
}

// beginSingle validates slot one and marks the session loading. The caller
// must settle when err is nil.
func (s *Session) beginSingle() (provider.Inference, Image, string, error) {
	s.mu.Lock()
	img := s.images[domain.SlotOne]
	if img == nil {
		s.mu.Unlock()
		return nil, Image{}, "", s.reject(domain.ErrMissingImage)
	}
	snapshot := *img
	backend := s.backend
	detector := s.selection.Detector
	s.notice = nil
	s.pending++
	s.mu.Unlock()

	return backend, snapshot, detector, nil
}

func (s *Session) checkLiveness(ctx context.Context, backend provider.Inference, slot domain.Slot, img Image, detector string) (*domain.LivenessResult, error) {
	start := time.Now()
	res, err := backend.CheckLiveness(ctx, provider.LivenessRequest{
		Image:    img.payload(),
		Detector: detector,
	})
	if err == nil && res == nil {
		err = fmt.Errorf("liveness check: %w", provider.ErrInvalidResponse)
	}
	s.audit(ctx, audit.EventLivenessChecked, start, err == nil && res.Success, err, imageMetadata(slot, img))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.currentLocked(slot, img.ID) {
		s.mu.Unlock()
		s.logger.Debug("discarding stale liveness result",
			slog.String("slot", slot.String()),
			slog.String("image_id", img.ID.String()),
		)
		return res, nil
	}
	s.liveness[slot] = res
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventResultLiveness, ResultEvent{
		Slot:    slot.String(),
		ImageID: img.ID,
		Result:  res,
	})

	return res, nil
}

func (s *Session) analyze(ctx context.Context, backend provider.Inference, slot domain.Slot, img Image) (*domain.AnalyzeResult, error) {
	start := time.Now()
	resp, err := backend.Analyze(ctx, img.payload())
	s.audit(ctx, audit.EventFaceAnalyzed, start, err == nil, err, imageMetadata(slot, img))
	if err != nil {
		return nil, err
	}
	res := resp.First()

	s.mu.Lock()
	if !s.currentLocked(slot, img.ID) {
		s.mu.Unlock()
		s.logger.Debug("discarding stale analysis",
			slog.String("slot", slot.String()),
			slog.String("image_id", img.ID.String()),
		)
		return res, nil
	}
	s.analysis[slot] = res
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventResultAnalyze, ResultEvent{
		Slot:    slot.String(),
		ImageID: img.ID,
		Result:  res,
	})

	return res, nil
}

// startChecks runs liveness and analyze for img independently. They outlive
// the request that uploaded the image and are bounded by the session timeout.
func (s *Session) startChecks(backend provider.Inference, slot domain.Slot, img Image, detector string) {
	s.background(func(ctx context.Context) {
		if _, err := s.checkLiveness(ctx, backend, slot, img, detector); err != nil {
			s.logger.Warn("background liveness check failed",
				slog.String("slot", slot.String()),
				slog.String("error", err.Error()),
			)
		}
	})
	s.background(func(ctx context.Context) {
		if _, err := s.analyze(ctx, backend, slot, img); err != nil {
			s.logger.Warn("background analyze failed",
				slog.String("slot", slot.String()),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (s *Session) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		fn(ctx)
	}()
}

func parseThreshold(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("parse threshold %q: %w", text, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("threshold %q is not finite", text)
	}
	return v, nil
}

// classify maps a backend error onto the user facing taxonomy
func classify(err error) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, provider.ErrInvalidResponse) {
		return domain.ErrInvalidInferenceResponse.WithError(err)
	}
	return domain.ErrInferenceUnavailable.WithError(err)
}

func noticeKind(code string) domain.NoticeKind {
	switch code {
	case domain.ErrMatchFailed.Code:
		return domain.NoticeLogical
	case domain.ErrInvalidInferenceResponse.Code:
		return domain.NoticeParse
	case domain.ErrInferenceUnavailable.Code:
		return domain.NoticeTransport
	}
	return domain.NoticeValidation
}

// fail logs a backend failure with its detail and surfaces the generic
// classified notice while current still holds
func (s *Session) fail(op string, err error, current func() bool) *domain.AppError {
	appErr := classify(err)
	s.logger.Error(op+" failed",
		slog.String("code", appErr.Code),
		slog.String("error", err.Error()),
	)
	return s.rejectIf(current, appErr)
}

// reject records appErr as the session notice and returns it
func (s *Session) reject(appErr *domain.AppError) *domain.AppError {
	return s.rejectIf(nil, appErr)
}

// rejectIf records appErr as the session notice unless current, evaluated
// under the lock, reports that the inputs of the failed call were replaced.
// A nil current always records.
func (s *Session) rejectIf(current func() bool, appErr *domain.AppError) *domain.AppError {
	notice := domain.Notice{
		Kind:      noticeKind(appErr.Code),
		Code:      appErr.Code,
		Message:   appErr.Message,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if current != nil && !current() {
		s.mu.Unlock()
		s.logger.Debug("discarding stale failure", slog.String("code", appErr.Code))
		return appErr
	}
	s.notice = &notice
	s.mu.Unlock()

	s.publisher.Publish(s.id, ws.EventNotice, notice)

	return appErr
}

// holds reports, under the lock, whether slot still carries the image id
func (s *Session) holds(slot domain.Slot, id uuid.UUID) func() bool {
	return func() bool {
		return s.currentLocked(slot, id)
	}
}
