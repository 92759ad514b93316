package users

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/enums"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/security"
)

const (
	verificationCodeLength = 6
	trialDays              = 7
	quotaResetBatch        = 500
)

var phoneRe = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// CodeSender delivers a verification code to a WhatsApp number.
type CodeSender interface {
	Send(ctx context.Context, toNumber, message string) error
}

// Service defines user profile, onboarding, verification, and quota operations.
type Service interface {
	EnsureUser(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
	Me(ctx context.Context, id uuid.UUID) (*ProfileView, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, params UpdateProfileParams) (*ProfileView, error)
	CompleteOnboarding(ctx context.Context, id uuid.UUID, params OnboardingParams) (*ProfileView, error)
	QuotaStatus(ctx context.Context, id uuid.UUID) (*QuotaView, error)
	RequestWhatsAppCode(ctx context.Context, id uuid.UUID, number string) error
	ConfirmWhatsAppCode(ctx context.Context, id uuid.UUID, code string) error
	ConsumeSummaryCredit(ctx context.Context, id uuid.UUID) (bool, error)
	RefundSummaryCredit(ctx context.Context, id uuid.UUID) error
	MaxChannels(ctx context.Context, id uuid.UUID) (int, error)
	ResetDueQuotas(ctx context.Context, now time.Time) (int, error)
	Export(ctx context.Context, id uuid.UUID) (*ExportBundle, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// ServiceParams wires users dependencies.
type ServiceParams struct {
	Repo   Repository
	Sender CodeSender
	Codes  config.CodeConfig
}

type service struct {
	repo   Repository
	sender CodeSender
	codes  config.CodeConfig
	now    func() time.Time
}

// NewService wires users dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "code sender required")
	}
	return &service{
		repo:   params.Repo,
		sender: params.Sender,
		codes:  params.Codes,
		now:    time.Now,
	}, nil
}

// UpdateProfileParams carries the editable profile fields. Nil means unchanged.
type UpdateProfileParams struct {
	DisplayName      *string
	SummaryFrequency *string
}

// OnboardingParams records the onboarding questionnaire answers.
type OnboardingParams struct {
	BusinessType     string
	ContentInterest  string
	SummaryFrequency string
}

// EnsureUser loads the user row, provisioning it on first sight. New
// users start on a trial with default quota and channel limits.
func (s *service) EnsureUser(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user != nil {
		return user, nil
	}

	now := s.now().UTC()
	trialEnd := now.Add(trialDays * 24 * time.Hour)
	user = &models.User{
		ID:                  id,
		Email:               strings.ToLower(strings.TrimSpace(email)),
		DisplayName:         displayNameFromEmail(email),
		SubscriptionStatus:  enums.SubscriptionTrialing,
		TrialEndDate:        &trialEnd,
		MonthlySummaryLimit: 30,
		MaxChannels:         3,
		SummaryResetDate:    now.AddDate(0, 1, 0),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision user")
	}
	return user, nil
}

func (s *service) Me(ctx context.Context, id uuid.UUID) (*ProfileView, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	view := profileFromModel(user)
	return &view, nil
}

func (s *service) UpdateProfile(ctx context.Context, id uuid.UUID, params UpdateProfileParams) (*ProfileView, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if params.DisplayName != nil {
		name := strings.TrimSpace(*params.DisplayName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name cannot be empty")
		}
		updates["display_name"] = name
		user.DisplayName = name
	}
	if params.SummaryFrequency != nil {
		freq := enums.SummaryFrequency(*params.SummaryFrequency)
		if !freq.Valid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid summary frequency")
		}
		updates["summary_frequency"] = string(freq)
		user.SummaryFrequency = &freq
	}

	if err := s.repo.UpdateProfile(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	view := profileFromModel(user)
	return &view, nil
}

func (s *service) CompleteOnboarding(ctx context.Context, id uuid.UUID, params OnboardingParams) (*ProfileView, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	businessType := strings.TrimSpace(params.BusinessType)
	contentInterest := strings.TrimSpace(params.ContentInterest)
	if businessType == "" || contentInterest == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business type and content interest required")
	}
	freq := enums.SummaryFrequency(params.SummaryFrequency)
	if !freq.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid summary frequency")
	}

	updates := map[string]any{
		"business_type":     businessType,
		"content_interest":  contentInterest,
		"summary_frequency": string(freq),
	}
	if err := s.repo.UpdateProfile(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save onboarding")
	}

	user.BusinessType = &businessType
	user.ContentInterest = &contentInterest
	user.SummaryFrequency = &freq
	view := profileFromModel(user)
	return &view, nil
}

func (s *service) QuotaStatus(ctx context.Context, id uuid.UUID) (*QuotaView, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	view := quotaFromModel(user)
	return &view, nil
}

func (s *service) RequestWhatsAppCode(ctx context.Context, id uuid.UUID, number string) error {
	number = strings.TrimSpace(number)
	if !phoneRe.MatchString(number) {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone number must be E.164 formatted")
	}
	if _, err := s.mustFind(ctx, id); err != nil {
		return err
	}

	code, err := security.GenerateCode(verificationCodeLength)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
	}
	hash, err := security.HashCode(code, s.codes)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash verification code")
	}

	now := s.now().UTC()
	if err := s.repo.SetVerification(ctx, id, number, hash, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store verification code")
	}

	message := fmt.Sprintf("Your TubeDigest verification code is %s. It expires in %d minutes.",
		code, int(s.codes.TTL.Minutes()))
	if err := s.sender.Send(ctx, number, message); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send verification code")
	}
	return nil
}

func (s *service) ConfirmWhatsAppCode(ctx context.Context, id uuid.UUID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "verification code required")
	}

	user, err := s.mustFind(ctx, id)
	if err != nil {
		return err
	}
	if user.VerificationHash == nil || user.VerificationSentAt == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "no verification in progress")
	}
	if s.now().UTC().Sub(*user.VerificationSentAt) > s.codes.TTL {
		return pkgerrors.New(pkgerrors.CodeValidation, "verification code expired")
	}

	ok, err := security.VerifyCode(code, *user.VerificationHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify code")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "verification code does not match")
	}

	if err := s.repo.MarkWhatsAppValidated(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark whatsapp validated")
	}
	return nil
}

func (s *service) ConsumeSummaryCredit(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	consumed, err := s.repo.ConsumeSummaryCredit(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume summary credit")
	}
	return consumed, nil
}

func (s *service) RefundSummaryCredit(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.repo.RefundSummaryCredit(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund summary credit")
	}
	return nil
}

func (s *service) MaxChannels(ctx context.Context, id uuid.UUID) (int, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.MaxChannels, nil
}

// ResetDueQuotas zeroes usage for every user whose reset date has
// passed and advances the date one month. Returns how many users were reset.
func (s *service) ResetDueQuotas(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListQuotaResetDue(ctx, now, quotaResetBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due quota resets")
	}

	reset := 0
	for _, user := range due {
		next := user.SummaryResetDate.AddDate(0, 1, 0)
		// Catch up after long downtime instead of scheduling in the past.
		for !next.After(now) {
			next = next.AddDate(0, 1, 0)
		}
		if err := s.repo.ResetQuota(ctx, user.ID, next); err != nil {
			return reset, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset quota")
		}
		reset++
	}
	return reset, nil
}

func (s *service) Export(ctx context.Context, id uuid.UUID) (*ExportBundle, error) {
	user, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	subs, err := s.repo.ExportSubscriptions(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export subscriptions")
	}
	notifs, err := s.repo.ExportNotifications(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export notifications")
	}

	return &ExportBundle{
		Profile:       profileFromModel(user),
		Quota:         quotaFromModel(user),
		Subscriptions: subs,
		Notifications: notifs,
		ExportedAt:    s.now().UTC(),
	}, nil
}

func (s *service) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if _, err := s.mustFind(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete account")
	}
	return nil
}

func (s *service) mustFind(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func displayNameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	if email == "" {
		return "there"
	}
	return email
}
