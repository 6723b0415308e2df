package service

import (
	"context"
	"errors"

	"tiqr/internal/challenge/models"
)

// Resolver routes a raw challenge to the service that understands it.
type Resolver struct {
	enrollment     *EnrollmentService
	authentication *AuthenticationService
}

func NewResolver(enrollment *EnrollmentService, authentication *AuthenticationService) *Resolver {
	return &Resolver{enrollment: enrollment, authentication: authentication}
}

// Kind reports which kind raw is, or the zero Kind when it is neither.
func (r *Resolver) Kind(raw string) models.Kind {
	switch {
	case r.enrollment.IsValid(raw):
		return models.KindEnrollment
	case r.authentication.IsValid(raw):
		return models.KindAuthentication
	default:
		return ""
	}
}

// Parse tries enrollment first, then authentication. Input that is neither
// fails with ParseInvalidChallenge and a zero Kind.
func (r *Resolver) Parse(ctx context.Context, raw string) (models.Challenge, error) {
	switch r.Kind(raw) {
	case models.KindEnrollment:
		c, err := r.enrollment.Parse(ctx, raw)
		if err != nil {
			return nil, err
		}
		return c, nil
	case models.KindAuthentication:
		c, err := r.authentication.Parse(ctx, raw)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, models.NewParseFailure("", models.ParseInvalidChallenge, errors.New("unrecognized challenge"))
	}
}

func (r *Resolver) Enrollment() *EnrollmentService { return r.enrollment }

func (r *Resolver) Authentication() *AuthenticationService { return r.authentication }
