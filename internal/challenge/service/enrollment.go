package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tiqr/internal/api"
	"tiqr/internal/audit"
	"tiqr/internal/challenge/metrics"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/ocra"
	"tiqr/internal/challenge/validation"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/platform/worker"
	"tiqr/internal/secret"
)

// EnrollmentService parses enrollment challenges and registers new identities.
type EnrollmentService struct {
	base
}

func NewEnrollmentService(cfg models.Config, store IdentityStore, secrets SecretService, client TiqrAPI, opts ...Option) (*EnrollmentService, error) {
	b, err := newBase(cfg, store, secrets, client, opts)
	if err != nil {
		return nil, err
	}
	return &EnrollmentService{base: b}, nil
}

func (s *EnrollmentService) IsValid(raw string) bool {
	return s.validator.IsValidEnrollment(raw)
}

// Parse fetches the metadata behind raw and returns the challenge to confirm.
// An identity that is already enrolled at the provider is rejected.
func (s *EnrollmentService) Parse(ctx context.Context, raw string) (*models.EnrollmentChallenge, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.Parse")
	defer span.End()

	c, err := worker.Run(ctx, s.pool, func(ctx context.Context) (*models.EnrollmentChallenge, error) {
		return s.parse(ctx, raw)
	})
	if err != nil {
		err = parseFailureOf(models.KindEnrollment, err)
		reason := models.ParseReasonOf(err)
		span.SetStatus(codes.Error, string(reason))
		s.metrics.IncrementParse(string(models.KindEnrollment), string(reason))
		s.logger.WarnContext(ctx, "enrollment challenge rejected", "reason", string(reason), "error", err)
		return nil, err
	}
	s.metrics.IncrementParse(string(models.KindEnrollment), metrics.OutcomeSuccess)
	return c, nil
}

func (s *EnrollmentService) parse(ctx context.Context, raw string) (*models.EnrollmentChallenge, error) {
	metadataURL, ok := s.validator.EnrollmentMetadataURL(raw)
	if !ok {
		return nil, models.NewParseFailure(models.KindEnrollment, models.ParseInvalidChallenge, errors.New("not an enrollment challenge"))
	}

	m, err := s.api.RequestMetadata(ctx, metadataURL.String())
	if err != nil {
		if api.IsTransport(err) {
			return nil, models.NewParseFailure(models.KindEnrollment, models.ParseConnection, err)
		}
		return nil, models.NewParseFailure(models.KindEnrollment, models.ParseInvalidChallenge, err)
	}
	if _, err := ocra.ParseSuite(m.Service.OCRASuite); err != nil {
		return nil, models.NewParseFailure(models.KindEnrollment, models.ParseInvalidChallenge, err)
	}

	existing, err := s.store.GetIdentity(ctx, m.Identity.Identifier, m.Service.Identifier)
	switch {
	case err == nil:
		return nil, models.NewParseFailure(models.KindEnrollment, models.ParseInvalidChallenge,
			fmt.Errorf("identity %d already enrolled", existing.ID)).
			WithMessage("%s is already enrolled for %s.", displayOr(m.Identity.DisplayName, m.Identity.Identifier), m.Service.DisplayName)
	case !isNotFound(err):
		return nil, models.NewParseFailure(models.KindEnrollment, models.ParseInvalidChallenge,
			fmt.Errorf("look up enrolled identity: %w", err))
	}

	identity := idmodels.NewIdentity(m.Identity.Identifier, m.Identity.DisplayName)
	return &models.EnrollmentChallenge{
		Base: models.Base{
			ProtocolVersion: s.cfg.ProtocolVersion,
			IdentityProvider: idmodels.IdentityProvider{
				DisplayName:       m.Service.DisplayName,
				Identifier:        m.Service.Identifier,
				AuthenticationURL: m.Service.AuthenticationURL,
				OCRASuite:         m.Service.OCRASuite,
				InfoURL:           m.Service.InfoURL,
				Logo:              m.Service.LogoURL,
			},
			Identity:  &identity,
			ReturnURL: validation.ReturnURL(metadataURL),
		},
		EnrollmentURL:  m.Service.EnrollmentURL,
		EnrollmentHost: hostOr(m.Service.EnrollmentURL),
	}, nil
}

// Complete registers a fresh secret with the server and, when the server
// accepts it, persists the provider, the identity and the PIN-wrapped secret.
func (s *EnrollmentService) Complete(ctx context.Context, req models.CompleteRequest[*models.EnrollmentChallenge]) error {
	ctx, span := s.tracer.Start(ctx, "enrollment.Complete")
	defer span.End()
	if req.Challenge != nil {
		span.SetAttributes(attribute.String("tiqr.identity_provider", req.Challenge.IdentityProvider.Identifier))
	}
	start := s.now()

	err := worker.Do(ctx, s.pool, func(ctx context.Context) error {
		return s.complete(ctx, req)
	})
	err = completeFailureOf(models.KindEnrollment, err)
	s.finishComplete(ctx, req, err, start)
	if err != nil {
		span.SetStatus(codes.Error, string(models.CompleteReasonOf(err)))
		return err
	}
	return nil
}

func (s *EnrollmentService) finishComplete(ctx context.Context, req models.CompleteRequest[*models.EnrollmentChallenge], err error, start time.Time) {
	outcome := metrics.OutcomeSuccess
	action := audit.ActionEnrolled
	event := audit.Event{}
	if c := req.Challenge; c != nil {
		event.IdentityProvider = c.IdentityProvider.Identifier
		if c.Identity != nil {
			event.Identity = c.Identity.Identifier
			event.IdentityID = c.Identity.ID
		}
	}
	if err != nil {
		outcome = string(models.CompleteReasonOf(err))
		action = audit.ActionEnrollFailed
		event.Reason = outcome
		s.logger.ErrorContext(ctx, "enrollment failed", "reason", outcome, "error", err)
	} else {
		s.logger.InfoContext(ctx, "enrollment completed", "identity_provider", event.IdentityProvider)
	}
	event.Action = action
	s.metrics.ObserveComplete(string(models.KindEnrollment), outcome, s.now().Sub(start))
	s.emit(ctx, event)
}

func (s *EnrollmentService) complete(ctx context.Context, req models.CompleteRequest[*models.EnrollmentChallenge]) error {
	fail := func(reason models.CompleteReason, err error) *models.CompleteFailure {
		return models.NewCompleteFailure(models.KindEnrollment, reason, err)
	}

	c := req.Challenge
	if c == nil || c.Identity == nil {
		return fail(models.CompleteUnknown, errors.New("enrollment challenge without identity"))
	}
	if req.Credential.Type != secret.PIN {
		return fail(models.CompleteSecurity, fmt.Errorf("enrollment requires a pin credential, got %q", req.Credential.Type))
	}

	value, err := s.secrets.CreateSecret()
	if err != nil {
		return fail(models.CompleteSecurity, err)
	}

	resp, err := s.api.Enroll(ctx, c.EnrollmentURL, api.EnrollRequest{
		Registration: s.registration(),
		SecretHex:    value.Hex(),
	})
	if err != nil {
		return fail(completeReasonForAPI(err), err)
	}
	if resp == nil {
		return fail(models.CompleteInvalidResponse, errors.New("empty enrollment response"))
	}
	if !s.cfg.CompatibilityMode && resp.ProtocolVersion <= s.cfg.ProtocolVersion {
		return fail(models.CompleteInvalidResponse, fmt.Errorf("unsupported protocol version %d", resp.ProtocolVersion)).
			WithMessage("The server uses an unsupported protocol version (v%d).", resp.ProtocolVersion)
	}
	if resp.Code != api.CodeSuccess {
		return fail(models.CompleteInvalidResponse, fmt.Errorf("unexpected response code %d", resp.Code)).
			WithMessage("The server rejected the enrollment (code %d).", resp.Code)
	}

	var providerID, identityID int64
	// A failed insert or secret save rolls back the rows written before it.
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		providerID, err = s.store.InsertIdentityProvider(ctx, c.IdentityProvider)
		if err != nil || providerID == idmodels.FailedID {
			return fail(models.CompleteUnknown, errors.Join(errors.New("saving identity provider failed"), err)).
				WithMessage("The identity provider could not be saved.")
		}

		identity := *c.Identity
		identity.IdentityProviderID = providerID
		identityID, err = s.store.InsertIdentity(ctx, identity)
		if err != nil || identityID == idmodels.FailedID {
			return fail(models.CompleteUnknown, errors.Join(errors.New("saving identity failed"), err)).
				WithMessage("The identity could not be saved.")
		}

		key, err := s.secrets.CreateSessionKey(ctx, req.Credential)
		if err != nil {
			return fail(models.CompleteSecurity, err)
		}
		if err := s.secrets.Save(ctx, s.secrets.CreateSecretIdentity(identityID, secret.PIN), value, key); err != nil {
			return fail(models.CompleteSecurity, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	c.Identity.ID = identityID
	c.Identity.IdentityProviderID = providerID
	c.IdentityProvider.ID = providerID
	return nil
}

func hostOr(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func displayOr(display, fallback string) string {
	if display != "" {
		return display
	}
	return fallback
}
