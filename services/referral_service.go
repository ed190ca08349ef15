package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/monitoring"
	"github.com/lvanfai123/moving-service-sub001/repositories"
	"github.com/lvanfai123/moving-service-sub001/utils"
)

// Reasons reported when a first-order reward is not granted
const (
	RewardReasonNoRelationship = "no referral relationship"
	RewardReasonAlreadyGranted = "reward already granted"
	RewardReasonExpired        = "referral expired"
	RewardReasonNotFirstOrder  = "not the first completed order"
)

// ReferralService manages referral codes and referrer/referee relationships
// and pays the first-order reward into the credit ledger.
type ReferralService struct {
	repo         repositories.ReferralRepository
	payments     repositories.PaymentRepository
	ledger       *CreditLedger
	rewardAmount int64
	maxAttempts  int
	window       time.Duration
	linkBase     string
	logger       *zap.Logger

	generateCode func() (string, error)
	now          func() time.Time
}

func NewReferralService(
	repo repositories.ReferralRepository,
	payments repositories.PaymentRepository,
	ledger *CreditLedger,
	cfg *config.Config,
	logger *zap.Logger,
) *ReferralService {
	attempts := cfg.CodeMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &ReferralService{
		repo:         repo,
		payments:     payments,
		ledger:       ledger,
		rewardAmount: cfg.ReferralRewardAmount,
		maxAttempts:  attempts,
		window:       cfg.ReferralWindow,
		linkBase:     cfg.ReferralLinkBase,
		logger:       logger.Named("referral"),
		generateCode: utils.GenerateUserReferralCode,
		now:          time.Now,
	}
}

// CreateCode returns the user's active referral code, minting one on first call
func (s *ReferralService) CreateCode(ctx context.Context, userID string) (*models.ReferralCode, error) {
	if userID == "" {
		return nil, models.NewError(models.ErrInvalid, "user id is required")
	}

	existing, err := s.repo.FindCodeByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral code")
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, models.WrapError(models.ErrInternal, err, "failed to generate referral code")
		}

		rc := &models.ReferralCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			Code:      code,
			IsActive:  true,
			CreatedAt: s.now(),
		}
		err = s.repo.InsertCode(ctx, rc)
		if err == nil {
			s.logger.Info("referral code created", zap.String("userId", userID), zap.String("code", code))
			return rc, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, models.WrapError(models.ErrInternal, err, "failed to store referral code")
		}

		// a concurrent call may have created this user's code
		if existing, findErr := s.repo.FindCodeByUser(ctx, userID); findErr == nil {
			return existing, nil
		}
		s.logger.Debug("referral code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}

	return nil, models.NewError(models.ErrExhaustedRetries,
		"could not generate a unique referral code after %d attempts", s.maxAttempts)
}

// ValidateCode looks a code up without changing anything
func (s *ReferralService) ValidateCode(ctx context.Context, code string) (*models.CodeValidation, error) {
	code = utils.NormalizeReferralCode(code)
	result := &models.CodeValidation{Code: code}
	if code == "" {
		return result, nil
	}

	rc, err := s.repo.FindCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral code")
	}

	if rc.IsActive {
		result.Valid = true
		result.ReferrerID = rc.UserID
	}
	return result, nil
}

// CreateRelationship links refereeID to referrerID through code
func (s *ReferralService) CreateRelationship(ctx context.Context, referrerID, refereeID, code string) (*models.ReferralRelationship, error) {
	if referrerID == refereeID {
		return nil, models.NewError(models.ErrSelfReferral, "you cannot use your own referral code")
	}

	validation, err := s.ValidateCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !validation.Valid || validation.ReferrerID != referrerID {
		return nil, models.NewError(models.ErrInvalidCode, "referral code is not valid")
	}

	_, err = s.repo.FindRelationshipByReferee(ctx, refereeID)
	if err == nil {
		return nil, models.NewError(models.ErrAlreadyReferred, "user has already been referred")
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral")
	}

	now := s.now()
	rel := &models.ReferralRelationship{
		ID:           uuid.NewString(),
		ReferrerID:   referrerID,
		RefereeID:    refereeID,
		ReferralCode: validation.Code,
		Status:       models.ReferralStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertRelationship(ctx, rel); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, models.NewError(models.ErrAlreadyReferred, "user has already been referred")
		}
		return nil, models.WrapError(models.ErrInternal, err, "failed to store referral")
	}

	s.logger.Info("referral relationship created",
		zap.String("relationshipId", rel.ID),
		zap.String("referrerId", referrerID),
		zap.String("refereeId", refereeID))
	return rel, nil
}

// ApplyCode resolves the owner of code and refers refereeID to them
func (s *ReferralService) ApplyCode(ctx context.Context, refereeID, code string) (*models.ReferralRelationship, error) {
	validation, err := s.ValidateCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, models.NewError(models.ErrInvalidCode, "referral code is not valid")
	}
	return s.CreateRelationship(ctx, validation.ReferrerID, refereeID, validation.Code)
}

// ProcessFirstOrderReward grants the referrer and the referee their reward
// once the referee completes a first order. Grants are keyed by relationship,
// so a call interrupted between the grants and the completion can be repeated.
// Calls after completion are no-ops.
func (s *ReferralService) ProcessFirstOrderReward(ctx context.Context, userID, orderID string) (*models.RewardOutcome, error) {
	rel, err := s.repo.FindRelationshipByReferee(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.skipReward("none", &models.RewardOutcome{Reason: RewardReasonNoRelationship}), nil
	}
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral")
	}

	outcome := &models.RewardOutcome{RelationshipID: rel.ID, ReferrerID: rel.ReferrerID}
	if rel.RewardGranted || rel.Status == models.ReferralStatusCompleted {
		outcome.Reason = RewardReasonAlreadyGranted
		return s.skipReward("duplicate", outcome), nil
	}
	if rel.Status == models.ReferralStatusExpired || (s.window > 0 && s.now().Sub(rel.CreatedAt) > s.window) {
		outcome.Reason = RewardReasonExpired
		return s.skipReward("expired", outcome), nil
	}

	completed, err := s.payments.CountCompletedFinals(ctx, userID)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to count completed orders")
	}
	if completed > 1 {
		outcome.Reason = RewardReasonNotFirstOrder
		return s.skipReward("not_first", outcome), nil
	}

	for _, grant := range []models.GrantRequest{
		{UserID: rel.ReferrerID, Amount: s.rewardAmount, Type: models.CreditTypeReferrer, ReferralID: rel.ID},
		{UserID: rel.RefereeID, Amount: s.rewardAmount, Type: models.CreditTypeReferee, ReferralID: rel.ID},
	} {
		if _, err := s.ledger.Grant(ctx, grant); err != nil {
			monitoring.ReferralRewards.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	flipped, err := s.repo.CompleteRelationship(ctx, rel.ID, orderID, s.now())
	if err != nil {
		monitoring.ReferralRewards.WithLabelValues("error").Inc()
		return nil, models.WrapError(models.ErrInternal, err, "failed to complete referral")
	}
	if !flipped {
		outcome.Reason = RewardReasonAlreadyGranted
		return s.skipReward("duplicate", outcome), nil
	}

	monitoring.ReferralRewards.WithLabelValues("granted").Inc()
	s.logger.Info("referral reward granted",
		zap.String("relationshipId", rel.ID),
		zap.String("referrerId", rel.ReferrerID),
		zap.String("refereeId", rel.RefereeID),
		zap.String("orderId", orderID),
		zap.Int64("amount", s.rewardAmount))

	outcome.Granted = true
	outcome.Amount = s.rewardAmount
	return outcome, nil
}

func (s *ReferralService) skipReward(label string, outcome *models.RewardOutcome) *models.RewardOutcome {
	monitoring.ReferralRewards.WithLabelValues(label).Inc()
	s.logger.Debug("referral reward skipped", zap.String("relationshipId", outcome.RelationshipID), zap.String("reason", outcome.Reason))
	return outcome
}

// ExpireRelationships closes pending relationships older than the referral window
func (s *ReferralService) ExpireRelationships(ctx context.Context, now time.Time) (int64, error) {
	if s.window <= 0 {
		return 0, nil
	}
	n, err := s.repo.ExpirePendingBefore(ctx, now.Add(-s.window), now)
	if err != nil {
		return 0, models.WrapError(models.ErrInternal, err, "failed to expire referrals")
	}
	if n > 0 {
		monitoring.SweepTransitions.WithLabelValues("referral").Add(float64(n))
		s.logger.Info("expired referral relationships", zap.Int64("count", n))
	}
	return n, nil
}

// ReferralSummary gathers the referral data shown to a user
func (s *ReferralService) ReferralSummary(ctx context.Context, userID string) (*models.ReferralSummary, error) {
	summary := &models.ReferralSummary{}

	code, err := s.repo.FindCodeByUser(ctx, userID)
	switch {
	case err == nil:
		summary.ReferralCode = code.Code
		summary.ReferralLink = s.linkBase + code.Code
		qrCode, qrErr := utils.ReferralQRCode(summary.ReferralLink)
		if qrErr != nil {
			s.logger.Warn("failed to generate referral qr code", zap.String("userId", userID), zap.Error(qrErr))
		}
		summary.QRCode = qrCode
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral code")
	}

	rels, err := s.repo.ListRelationshipsByReferrer(ctx, userID)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, err, "failed to list referrals")
	}
	summary.ReferralCount = len(rels)
	for _, rel := range rels {
		if rel.Status == models.ReferralStatusCompleted {
			summary.CompletedCount++
		}
	}

	rel, err := s.repo.FindRelationshipByReferee(ctx, userID)
	switch {
	case err == nil:
		summary.ReferredBy = rel.ReferrerID
		summary.RelationshipState = string(rel.Status)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, models.WrapError(models.ErrInternal, err, "failed to look up referral")
	}

	balance, err := s.ledger.AvailableBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.AvailableCredit = balance
	return summary, nil
}
