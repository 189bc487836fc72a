package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMinClassificationConfidence is the oracle confidence below which
	// an email is not treated as a load request
	DefaultMinClassificationConfidence = 60

	// DefaultReviewConfidence is the overall confidence below which a load is
	// flagged for human review
	DefaultReviewConfidence = 85

	reasonProcessingError = "processing error"
)

// flags that always send a load to a human
var reviewFlags = map[string]bool{
	"hazmat":     true,
	"oversize":   true,
	"escort":     true,
	"overweight": true,
}

// IntakeOptions are the tunable thresholds of the pipeline
type IntakeOptions struct {
	MinClassificationConfidence int
	ReviewConfidence            int
	CriticalFields              []string
	MatchWindow                 time.Duration
}

// IntakeService turns inbound emails into loads or clarification requests
type IntakeService struct {
	oracle     ExtractionOracle
	repo       Repository
	notifier   ClarificationNotifier
	senders    SenderPolicy
	validator  *FreightValidator
	classifier *FreightClassifier
	matcher    *ClarificationMatcher
	merger     *ResponseMerger
	logger     *zap.Logger
	opts       IntakeOptions
	now        func() time.Time
	newID      func() string
}

// NewIntakeService creates the intake pipeline. notifier and senders may be nil.
func NewIntakeService(
	oracle ExtractionOracle,
	repo Repository,
	notifier ClarificationNotifier,
	senders SenderPolicy,
	logger *zap.Logger,
	opts IntakeOptions,
) *IntakeService {
	if opts.MinClassificationConfidence <= 0 {
		opts.MinClassificationConfidence = DefaultMinClassificationConfidence
	}
	if opts.ReviewConfidence <= 0 {
		opts.ReviewConfidence = DefaultReviewConfidence
	}
	if len(opts.CriticalFields) == 0 {
		opts.CriticalFields = DefaultCriticalFields
	}
	return &IntakeService{
		oracle:     oracle,
		repo:       repo,
		notifier:   notifier,
		senders:    senders,
		validator:  NewFreightValidator(),
		classifier: NewFreightClassifier(),
		matcher:    NewClarificationMatcher(repo, logger, opts.MatchWindow),
		merger:     NewResponseMerger(oracle),
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// decisionInput is the state carried from extraction into validation
type decisionInput struct {
	email          *Email
	data           LoadData
	freightType    FreightType
	typeConfidence int
	// stage confidences; negative means the stage did not run
	classificationConfidence int
	extractionConfidence     int
	intent                   string
	request                  *ClarificationRequest
}

// ProcessEmail runs one email through the pipeline. Oracle failures degrade
// to an ignore decision; only persistence failures are returned as errors.
func (s *IntakeService) ProcessEmail(ctx context.Context, email *Email) (*IntakeResult, error) {
	if email == nil {
		return nil, fmt.Errorf("email is nil")
	}
	log := s.logger.With(
		zap.String("broker_id", email.BrokerID),
		zap.String("message_id", email.MessageID),
		zap.String("from", email.From))

	if s.senders != nil {
		if ignore, reason := s.senders.ShouldIgnore(email.From); ignore {
			log.Info("Ignoring email from excluded sender", zap.String("reason", reason))
			return &IntakeResult{Action: ActionIgnore, Reason: reason}, nil
		}
	}

	if req := s.matcher.FindMatchingRequest(ctx, email); req != nil {
		return s.processReply(ctx, email, req, log.With(zap.String("request_id", req.ID)))
	}
	return s.processNew(ctx, email, log)
}

func (s *IntakeService) processNew(ctx context.Context, email *Email, log *zap.Logger) (*IntakeResult, error) {
	extraction, err := s.oracle.Extract(ctx, ExtractionRequest{
		Subject: email.Subject,
		From:    email.From,
		Body:    email.Body,
	})
	if err == nil && extraction == nil {
		err = errors.New("oracle returned no result")
	}
	if err != nil {
		log.Error("Extraction failed", zap.Error(err))
		return &IntakeResult{Action: ActionIgnore, Reason: reasonProcessingError}, nil
	}

	if !extraction.IsLoadRequest || extraction.Confidence < s.opts.MinClassificationConfidence {
		log.Info("Email is not a load request",
			zap.Bool("is_load_request", extraction.IsLoadRequest),
			zap.Int("confidence", extraction.Confidence),
			zap.String("intent", extraction.Intent))
		return &IntakeResult{
			Action:     ActionIgnore,
			Reason:     "not a load request",
			Confidence: extraction.Confidence,
			Intent:     extraction.Intent,
		}, nil
	}

	data, found := ParseFields(extraction.Fields)
	if len(found) == 0 {
		log.Info("Extraction returned no load fields")
		return &IntakeResult{
			Action:     ActionIgnore,
			Reason:     "no load fields extracted",
			Confidence: extraction.Confidence,
			Intent:     extraction.Intent,
		}, nil
	}

	typed := s.resolveFreightType(data, extraction, log)
	return s.decide(ctx, decisionInput{
		email:                    email,
		data:                     data,
		freightType:              typed.FreightType,
		typeConfidence:           typed.Confidence,
		classificationConfidence: extraction.Confidence,
		extractionConfidence:     extractionConfidence(extraction),
		intent:                   extraction.Intent,
	}, log)
}

func (s *IntakeService) processReply(ctx context.Context, email *Email, req *ClarificationRequest, log *zap.Logger) (*IntakeResult, error) {
	res, err := s.merger.ProcessResponse(ctx, MergeContext{
		Request: req,
		Email:   email,
		Body:    StripQuotedReply(email.Body),
	})
	if err != nil {
		log.Error("Reply extraction failed", zap.Error(err))
		return &IntakeResult{Action: ActionIgnore, Reason: reasonProcessingError, IsReply: true}, nil
	}
	log.Info("Merged clarification reply",
		zap.Strings("found_fields", res.FoundFields),
		zap.Strings("still_missing", res.StillMissingFields),
		zap.Int("round", req.Round))

	return s.decide(ctx, decisionInput{
		email:                    email,
		data:                     res.MergedData,
		freightType:              req.FreightType,
		typeConfidence:           req.TypeConfidence,
		classificationConfidence: -1,
		extractionConfidence:     extractionConfidence(res.Extraction),
		intent:                   res.Extraction.Intent,
		request:                  req,
	}, log)
}

// resolveFreightType prefers the rule ladder and accepts the oracle's
// suggestion only when it is a known type with a strictly higher confidence
func (s *IntakeService) resolveFreightType(data LoadData, extraction *ExtractionResult, log *zap.Logger) FreightTypeResult {
	typed := s.classifier.Identify(data)
	suggested, ok := ParseFreightType(extraction.SuggestedFreightType)
	if !ok || suggested == FreightUnknown || suggested == typed.FreightType {
		return typed
	}
	if extraction.SuggestedTypeConfidence > typed.Confidence {
		log.Debug("Using oracle freight type",
			zap.String("rule_type", string(typed.FreightType)),
			zap.String("oracle_type", string(suggested)),
			zap.Int("oracle_confidence", extraction.SuggestedTypeConfidence))
		return FreightTypeResult{FreightType: suggested, Confidence: extraction.SuggestedTypeConfidence, Rule: "oracle"}
	}
	return typed
}

func (s *IntakeService) decide(ctx context.Context, in decisionInput, log *zap.Logger) (*IntakeResult, error) {
	issues, warnings := s.validator.Validate(in.data, in.freightType)
	critical := CriticalIssues(issues, s.opts.CriticalFields)
	validationConf := validationConfidence(len(critical), len(issues)-len(critical)+len(warnings))

	conf := minConfidence(in.classificationConfidence, in.extractionConfidence, in.typeConfidence, validationConf)
	data := in.data.Clone()
	result := &IntakeResult{
		FreightType:    in.freightType,
		TypeConfidence: in.typeConfidence,
		Confidence:     conf,
		Intent:         in.intent,
		LoadData:       &data,
		Issues:         issues,
		Warnings:       warnings,
		IsReply:        in.request != nil,
	}
	log = log.With(
		zap.String("freight_type", string(in.freightType)),
		zap.Int("confidence", conf),
		zap.Int("critical_issues", len(critical)))

	if len(critical) == 0 {
		return s.proceed(ctx, in, result, log)
	}
	return s.clarify(ctx, in, critical, result, log)
}

func (s *IntakeService) proceed(ctx context.Context, in decisionInput, result *IntakeResult, log *zap.Logger) (*IntakeResult, error) {
	load := s.buildLoad(in, result.Confidence)
	result.Action = ActionProceedToQuote
	result.RequiresReview = load.RequiresReview

	if in.request == nil {
		if err := s.repo.CreateLoad(ctx, load); err != nil {
			return nil, fmt.Errorf("failed to create load: %w", err)
		}
	} else {
		created, err := s.repo.CreateLoadForClarification(ctx, in.request.BrokerID, in.request.ID, in.data, load)
		if err != nil {
			return nil, fmt.Errorf("failed to create load for clarification: %w", err)
		}
		result.ClarificationRequestID = in.request.ID
		if !created {
			log.Info("Load already created for clarification request")
			result.Reason = "clarification request already resolved"
			result.Duplicate = true
			return result, nil
		}
	}

	result.Reason = "all required information present"
	result.LoadID = load.ID
	result.LoadCreated = true
	log.Info("Created load",
		zap.String("load_id", load.ID),
		zap.String("equipment", load.Equipment),
		zap.Bool("requires_review", load.RequiresReview))
	return result, nil
}

func (s *IntakeService) clarify(ctx context.Context, in decisionInput, critical []ValidationIssue, result *IntakeResult, log *zap.Logger) (*IntakeResult, error) {
	fields := issueFields(critical)
	now := s.now()
	req := &ClarificationRequest{
		ID:             s.newID(),
		BrokerID:       in.email.BrokerID,
		ShipperEmail:   NormalizeAddress(in.email.From),
		FreightType:    in.freightType,
		TypeConfidence: in.typeConfidence,
		ExtractedData:  in.data.Clone(),
		MissingFields:  fields,
		MessageID:      CleanMessageID(in.email.MessageID),
		ThreadRootID:   CleanMessageID(in.email.MessageID),
		Subject:        in.email.Subject,
		Round:          1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result.Action = ActionRequestClarification
	result.Reason = "missing or insufficient information"
	result.ClarificationNeeded = DisplayNames(fields)

	if prev := in.request; prev == nil {
		err := s.repo.CreateClarification(ctx, req)
		if errors.Is(err, ErrOpenRequestExists) {
			err = s.repo.CreateClarification(ctx, req)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create clarification request: %w", err)
		}
	} else {
		req.BrokerID = prev.BrokerID
		req.ShipperEmail = prev.ShipperEmail
		req.ThreadRootID = prev.ThreadRootID
		req.Subject = prev.Subject
		req.Round = prev.Round + 1
		advanced, err := s.repo.AdvanceClarification(ctx, prev.BrokerID, prev.ID, in.data, req)
		if err != nil {
			return nil, fmt.Errorf("failed to advance clarification request: %w", err)
		}
		if !advanced {
			log.Info("Clarification request was answered by another reply")
			result.Reason = "clarification request already answered"
			result.ClarificationRequestID = prev.ID
			result.Duplicate = true
			return result, nil
		}
	}

	payload := ComposeClarification(req)
	result.ClarificationRequestID = req.ID
	result.Clarification = payload
	log.Info("Requesting clarification",
		zap.String("request_id", req.ID),
		zap.Strings("missing_fields", fields),
		zap.Int("round", req.Round))

	if s.notifier != nil {
		msgID, err := s.notifier.Send(ctx, payload)
		if err != nil {
			log.Warn("Failed to send clarification", zap.Error(err), zap.String("request_id", req.ID))
			return result, nil
		}
		if msgID != "" {
			if err := s.repo.SetClarificationMessageID(ctx, req.BrokerID, req.ID, CleanMessageID(msgID)); err != nil {
				log.Warn("Failed to record clarification message id", zap.Error(err))
			}
		}
	}
	return result, nil
}

func (s *IntakeService) buildLoad(in decisionInput, confidence int) *Load {
	now := s.now()
	pickupAt, estimated := NormalizePickupDate(in.data.PickupDate, now)
	flags := ComplexityFlags(in.data, in.freightType)
	review := confidence < s.opts.ReviewConfidence
	for _, f := range flags {
		if reviewFlags[f] {
			review = true
		}
	}

	load := &Load{
		ID:                  s.newID(),
		BrokerID:            in.email.BrokerID,
		ShipperEmail:        NormalizeAddress(in.email.From),
		FreightType:         in.freightType,
		Equipment:           EquipmentFor(in.data.EquipmentType, in.freightType),
		PickupAt:            pickupAt,
		PickupDateEstimated: estimated,
		Data:                in.data.Clone(),
		RawText:             in.email.Subject + "\n\n" + in.email.Body,
		Confidence:          confidence,
		ComplexityFlags:     flags,
		RequiresReview:      review,
		SourceMessageID:     CleanMessageID(in.email.MessageID),
		CreatedAt:           now,
	}
	if IsValidZip(in.data.PickupLocation.Zip) {
		load.OriginZip = in.data.PickupLocation.Zip
	}
	if IsValidZip(in.data.DeliveryLocation.Zip) {
		load.DestinationZip = in.data.DeliveryLocation.Zip
	}
	if in.request != nil {
		load.ClarificationID = in.request.ID
		load.BrokerID = in.request.BrokerID
		load.ShipperEmail = in.request.ShipperEmail
	}
	return load
}

func extractionConfidence(r *ExtractionResult) int {
	if r.ExtractionConfidence > 0 {
		return r.ExtractionConfidence
	}
	return r.Confidence
}

// validationConfidence scores data quality: 15 points per blocking issue and
// 5 per other issue or warning
func validationConfidence(critical, other int) int {
	c := 100 - 15*critical - 5*other
	if c < 0 {
		return 0
	}
	return c
}

// minConfidence is the weakest-link rollup; negative values are skipped
func minConfidence(values ...int) int {
	lowest := -1
	for _, v := range values {
		if v < 0 {
			continue
		}
		if lowest < 0 || v < lowest {
			lowest = v
		}
	}
	if lowest < 0 {
		return 0
	}
	return lowest
}

func issueFields(issues []ValidationIssue) []string {
	seen := make(map[string]bool, len(issues))
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		if !seen[is.Field] {
			seen[is.Field] = true
			out = append(out, is.Field)
		}
	}
	return out
}
