package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tiqr/internal/api"
	"tiqr/internal/audit"
	"tiqr/internal/challenge/metrics"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/ocra"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/platform/worker"
	"tiqr/internal/secret"
)

// AuthenticationService resolves authentication challenges against enrolled
// identities and answers them.
type AuthenticationService struct {
	base
}

func NewAuthenticationService(cfg models.Config, store IdentityStore, secrets SecretService, client TiqrAPI, opts ...Option) (*AuthenticationService, error) {
	b, err := newBase(cfg, store, secrets, client, opts)
	if err != nil {
		return nil, err
	}
	return &AuthenticationService{base: b}, nil
}

func (s *AuthenticationService) IsValid(raw string) bool {
	return s.validator.IsValidAuthentication(raw)
}

// Parse resolves raw against the local store. No network call is made.
//
// A challenge naming a user id is a step-up challenge for that identity.
// Otherwise every unblocked identity at a provider with the challenge's
// identifier is a candidate; with more than one the caller must select.
func (s *AuthenticationService) Parse(ctx context.Context, raw string) (*models.AuthenticationChallenge, error) {
	ctx, span := s.tracer.Start(ctx, "authentication.Parse")
	defer span.End()

	c, err := worker.Run(ctx, s.pool, func(ctx context.Context) (*models.AuthenticationChallenge, error) {
		return s.parse(ctx, raw)
	})
	if err != nil {
		err = parseFailureOf(models.KindAuthentication, err)
		reason := models.ParseReasonOf(err)
		span.SetStatus(codes.Error, string(reason))
		s.metrics.IncrementParse(string(models.KindAuthentication), string(reason))
		s.logger.WarnContext(ctx, "authentication challenge rejected", "reason", string(reason), "error", err)
		return nil, err
	}
	s.metrics.IncrementParse(string(models.KindAuthentication), metrics.OutcomeSuccess)
	return c, nil
}

func (s *AuthenticationService) parse(ctx context.Context, raw string) (*models.AuthenticationChallenge, error) {
	fail := func(reason models.ParseReason, err error) *models.ParseFailure {
		return models.NewParseFailure(models.KindAuthentication, reason, err)
	}

	req, ok := s.validator.ParseAuthentication(raw)
	if !ok {
		return nil, fail(models.ParseInvalidChallenge, errors.New("not an authentication challenge"))
	}

	candidates, err := s.store.IdentitiesForProvider(ctx, req.ProviderIdentifier)
	if err != nil {
		return nil, fail(models.ParseInvalidChallenge, fmt.Errorf("look up identities: %w", err))
	}
	if len(candidates) == 0 {
		return nil, fail(models.ParseInvalidIdentityProvider, fmt.Errorf("no provider %q", req.ProviderIdentifier))
	}

	c := &models.AuthenticationChallenge{
		Base: models.Base{
			ProtocolVersion: req.ProtocolVersion,
			ReturnURL:       req.ReturnURL,
		},
		SessionKey:                req.SessionKey,
		Challenge:                 req.Challenge,
		ServiceProviderIdentifier: req.ServiceProviderIdentifier,
	}

	if req.UserID != "" {
		var match *idmodels.IdentityWithProvider
		for i := range candidates {
			if candidates[i].Identity.Identifier == req.UserID {
				match = &candidates[i]
				break
			}
		}
		if match == nil {
			return nil, fail(models.ParseNoIdentities, fmt.Errorf("no identity %q at %q", req.UserID, req.ProviderIdentifier))
		}
		if match.Identity.Blocked {
			return nil, fail(models.ParseAccountBlocked, fmt.Errorf("identity %d is blocked", match.Identity.ID))
		}
		c = c.SelectIdentity(*match)
		c.IsStepUpChallenge = true
	} else {
		usable := make([]idmodels.IdentityWithProvider, 0, len(candidates))
		for _, cand := range candidates {
			if !cand.Identity.Blocked {
				usable = append(usable, cand)
			}
		}
		switch len(usable) {
		case 0:
			return nil, fail(models.ParseAccountBlocked, fmt.Errorf("all identities at %q are blocked", req.ProviderIdentifier))
		case 1:
			c = c.SelectIdentity(usable[0])
		default:
			c.IdentityProvider = usable[0].Provider
			c.Identities = usable
		}
	}

	c.ServiceProviderDisplayName = c.IdentityProvider.DisplayName
	if _, err := ocra.ParseSuite(c.IdentityProvider.OCRASuite); err != nil {
		return nil, fail(models.ParseInvalidIdentityProvider, err)
	}
	return c, nil
}

// Complete answers the challenge with an OCRA response computed from the
// identity's secret, unlocked with req.Credential.
func (s *AuthenticationService) Complete(ctx context.Context, req models.CompleteRequest[*models.AuthenticationChallenge]) error {
	ctx, span := s.tracer.Start(ctx, "authentication.Complete")
	defer span.End()
	if req.Challenge != nil {
		span.SetAttributes(
			attribute.String("tiqr.identity_provider", req.Challenge.IdentityProvider.Identifier),
			attribute.Bool("tiqr.step_up", req.Challenge.IsStepUpChallenge),
		)
	}
	start := s.now()

	err := worker.Do(ctx, s.pool, func(ctx context.Context) error {
		return s.complete(ctx, req)
	})
	err = completeFailureOf(models.KindAuthentication, err)
	s.finishComplete(ctx, req.Challenge, err, start)
	if err != nil {
		span.SetStatus(codes.Error, string(models.CompleteReasonOf(err)))
		return err
	}
	return nil
}

func (s *AuthenticationService) finishComplete(ctx context.Context, c *models.AuthenticationChallenge, err error, start time.Time) {
	outcome := metrics.OutcomeSuccess
	event := audit.Event{Action: audit.ActionAuthenticated}
	if c != nil {
		event.IdentityProvider = c.IdentityProvider.Identifier
		event.ServiceProvider = c.ServiceProviderIdentifier
		if c.Identity != nil {
			event.IdentityID = c.Identity.ID
			event.Identity = c.Identity.Identifier
		}
	}
	if err != nil {
		outcome = string(models.CompleteReasonOf(err))
		event.Action = audit.ActionAuthenticateFailed
		event.Reason = outcome
		s.logger.ErrorContext(ctx, "authentication failed", "reason", outcome, "error", err)
	} else {
		s.logger.InfoContext(ctx, "authentication completed", "identity_id", event.IdentityID)
	}
	s.metrics.ObserveComplete(string(models.KindAuthentication), outcome, s.now().Sub(start))
	s.emit(ctx, event)
}

func (s *AuthenticationService) complete(ctx context.Context, req models.CompleteRequest[*models.AuthenticationChallenge]) error {
	fail := func(reason models.CompleteReason, err error) *models.CompleteFailure {
		return models.NewCompleteFailure(models.KindAuthentication, reason, err)
	}

	c := req.Challenge
	response, err := s.response(ctx, c, req.Credential)
	if err != nil {
		return err
	}

	resp, err := s.api.Authenticate(ctx, c.IdentityProvider.AuthenticationURL, api.AuthenticateRequest{
		Registration: s.registration(),
		SessionKey:   c.SessionKey,
		UserID:       c.Identity.Identifier,
		Response:     response,
	})
	if err != nil {
		return fail(completeReasonForAPI(err), err)
	}

	switch resp.Code {
	case api.CodeSuccess:
		return nil
	case api.CodeInvalidResponse:
		if resp.AttemptsLeft != nil && *resp.AttemptsLeft == 0 {
			s.block(ctx, c)
			f := fail(models.CompleteAccountBlocked, errors.New("no attempts left"))
			f.RemainingAttempts = resp.AttemptsLeft
			return f
		}
		f := fail(models.CompleteInvalidResponse, errors.New("server rejected response"))
		f.RemainingAttempts = resp.AttemptsLeft
		if resp.AttemptsLeft != nil {
			f = f.WithMessage("Wrong PIN. %d attempt(s) left.", *resp.AttemptsLeft)
		}
		return f
	case api.CodeAccountBlocked:
		f := fail(models.CompleteAccountBlocked, errors.New("account blocked"))
		f.BlockedMinutes = resp.Duration
		if resp.Duration == nil {
			s.block(ctx, c)
		} else {
			f = f.WithMessage("Your account is blocked for %d minutes.", *resp.Duration)
		}
		return f
	case api.CodeInvalidRequest:
		return fail(models.CompleteInvalidRequest, errors.New("invalid request"))
	case api.CodeInvalidChallenge:
		return fail(models.CompleteInvalidChallenge, errors.New("invalid challenge"))
	case api.CodeInvalidUserID:
		return fail(models.CompleteInvalidUserID, errors.New("invalid user id"))
	default:
		return fail(models.CompleteUnknown, fmt.Errorf("unexpected response code %d", resp.Code))
	}
}

// CompleteOTP derives the one-time password for c without contacting the server.
func (s *AuthenticationService) CompleteOTP(ctx context.Context, c *models.AuthenticationChallenge, cred secret.Credential) (string, error) {
	ctx, span := s.tracer.Start(ctx, "authentication.CompleteOTP")
	defer span.End()

	otp, err := worker.Run(ctx, s.pool, func(ctx context.Context) (string, error) {
		return s.response(ctx, c, cred)
	})
	if err != nil {
		err = completeFailureOf(models.KindAuthentication, err)
		span.SetStatus(codes.Error, string(models.CompleteReasonOf(err)))
		s.logger.WarnContext(ctx, "otp generation failed", "reason", string(models.CompleteReasonOf(err)), "error", err)
		return "", err
	}

	s.metrics.IncrementOTPGenerated()
	s.emit(ctx, audit.Event{
		Action:           audit.ActionOTPGenerated,
		IdentityID:       c.Identity.ID,
		Identity:         c.Identity.Identifier,
		IdentityProvider: c.IdentityProvider.Identifier,
	})
	return otp, nil
}

// response unlocks the identity secret with cred and computes the OCRA
// response to c.
func (s *AuthenticationService) response(ctx context.Context, c *models.AuthenticationChallenge, cred secret.Credential) (string, error) {
	fail := func(reason models.CompleteReason, err error) *models.CompleteFailure {
		return models.NewCompleteFailure(models.KindAuthentication, reason, err)
	}
	if c == nil || c.Identity == nil || !c.Identity.IsPersisted() {
		return "", fail(models.CompleteInvalidRequest, errors.New("no identity selected")).
			WithMessage("Select an account to log in with.")
	}
	if c.Identity.Blocked {
		return "", fail(models.CompleteAccountBlocked, fmt.Errorf("identity %d is blocked", c.Identity.ID))
	}

	key, err := s.secrets.CreateSessionKey(ctx, cred)
	if err != nil {
		return "", fail(models.CompleteSecurity, err)
	}
	value, err := s.secrets.Load(ctx, s.secrets.CreateSecretIdentity(c.Identity.ID, cred.Type), key)
	if err != nil {
		return "", fail(models.CompleteSecurity, err)
	}

	response, err := ocra.Compute(c.IdentityProvider.OCRASuite, value.Bytes(), ocra.Input{
		Question: c.Challenge,
		Session:  c.SessionKey,
	})
	if err != nil {
		return "", fail(models.CompleteInvalidChallenge, err)
	}
	return response, nil
}

// block persists the blocked flag. Failure is logged; the caller still
// reports the server's verdict.
func (s *AuthenticationService) block(ctx context.Context, c *models.AuthenticationChallenge) {
	identity := *c.Identity
	identity.Blocked = true
	if err := s.store.UpdateIdentity(ctx, identity); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark identity blocked", "identity_id", identity.ID, "error", err)
		return
	}
	c.Identity.Blocked = true
	s.metrics.IncrementIdentitiesBlocked()
	s.emit(ctx, audit.Event{
		Action:           audit.ActionIdentityBlocked,
		IdentityID:       identity.ID,
		Identity:         identity.Identifier,
		IdentityProvider: c.IdentityProvider.Identifier,
	})
}
