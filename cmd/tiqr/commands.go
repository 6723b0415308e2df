package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"tiqr/internal/challenge/models"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/notification"
	"tiqr/internal/secret"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"migrate":      {"upgrade the identity store and verify its integrity", runMigrate},
	"parse":        {"describe a raw challenge: parse <challenge>", runParse},
	"enroll":       {"enroll an identity: enroll -pin PIN <challenge>", runEnroll},
	"authenticate": {"answer a login: authenticate [-pin PIN | -biometric] [-identity ID] <challenge>", runAuthenticate},
	"otp":          {"print a one-time password: otp [-pin PIN | -biometric] [-identity ID] <challenge>", runOTP},
	"notify":       {"handle a push payload: notify [-text T] [-timeout SECONDS] <challenge>", runNotify},
	"consume":      {"take the pending challenge from the notification cache", runConsume},
	"identities":   {"list or manage identities, see identities -h", runIdentities},
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func challengeArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", errors.New("expected exactly one challenge argument")
	}
	return strings.TrimSpace(fs.Arg(0)), nil
}

// describeFailure turns a typed failure into the text a user would see.
func describeFailure(err error) error {
	var parse *models.ParseFailure
	if errors.As(err, &parse) {
		return fmt.Errorf("%s: %s [%s]", parse.Title, parse.Message, parse.Reason)
	}
	var complete *models.CompleteFailure
	if errors.As(err, &complete) {
		return fmt.Errorf("%s: %s [%s]", complete.Title, complete.Message, complete.Reason)
	}
	return err
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("migrate", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	version, err := a.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if err := a.migrator.Check(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "identity store at version %d, integrity ok\n", version)
	return nil
}

func runParse(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("parse", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := challengeArg(fs)
	if err != nil {
		return err
	}
	c, err := a.resolver.Parse(ctx, raw)
	if err != nil {
		return describeFailure(err)
	}
	describe(a.out, c)
	return nil
}

func describe(w io.Writer, c models.Challenge) {
	common := c.Common()
	fmt.Fprintf(w, "kind:              %s\n", c.Kind())
	fmt.Fprintf(w, "identity provider: %s (%s)\n", common.IdentityProvider.DisplayName, common.IdentityProvider.Identifier)
	if common.ReturnURL != "" {
		fmt.Fprintf(w, "return url:        %s\n", common.ReturnURL)
	}
	models.Match(c,
		func(e *models.EnrollmentChallenge) struct{} {
			fmt.Fprintf(w, "identity:          %s (%s)\n", e.Identity.DisplayName, e.Identity.Identifier)
			fmt.Fprintf(w, "enrollment host:   %s\n", e.EnrollmentHost)
			return struct{}{}
		},
		func(au *models.AuthenticationChallenge) struct{} {
			fmt.Fprintf(w, "service provider:  %s\n", au.ServiceProviderIdentifier)
			if au.IsStepUpChallenge {
				fmt.Fprintf(w, "step-up:           yes\n")
			}
			if au.Identity != nil {
				fmt.Fprintf(w, "identity:          %s (%s)\n", au.Identity.DisplayName, au.Identity.Identifier)
			}
			for _, cand := range au.Identities {
				fmt.Fprintf(w, "candidate:         %s at %s\n", cand.Identity.Identifier, cand.Provider.DisplayName)
			}
			return struct{}{}
		},
	)
}

func runEnroll(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("enroll", a.out)
	pin := fs.String("pin", "", "PIN protecting the new identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := challengeArg(fs)
	if err != nil {
		return err
	}
	if *pin == "" {
		return errors.New("-pin is required")
	}

	enrollment := a.resolver.Enrollment()
	c, err := enrollment.Parse(ctx, raw)
	if err != nil {
		return describeFailure(err)
	}
	err = enrollment.Complete(ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
		Challenge:  c,
		Credential: secret.PINCredential(*pin),
	})
	if err != nil {
		return describeFailure(err)
	}
	fmt.Fprintf(a.out, "enrolled %s at %s (identity %d)\n", c.Identity.Identifier, c.IdentityProvider.DisplayName, c.Identity.ID)
	return nil
}

type loginFlags struct {
	pin       *string
	biometric *bool
	identity  *string
}

func addLoginFlags(fs *flag.FlagSet) loginFlags {
	return loginFlags{
		pin:       fs.String("pin", "", "PIN unlocking the identity"),
		biometric: fs.Bool("biometric", false, "unlock with the device key instead of a PIN"),
		identity:  fs.String("identity", "", "identifier to use when several identities match"),
	}
}

func (f loginFlags) credential() (secret.Credential, error) {
	if *f.biometric {
		return secret.BiometricCredential(), nil
	}
	if *f.pin == "" {
		return secret.Credential{}, errors.New("-pin or -biometric is required")
	}
	return secret.PINCredential(*f.pin), nil
}

// authChallenge parses raw and resolves the identity to answer with.
func authChallenge(ctx context.Context, a *app, raw, identifier string) (*models.AuthenticationChallenge, error) {
	c, err := a.resolver.Authentication().Parse(ctx, raw)
	if err != nil {
		return nil, describeFailure(err)
	}
	if !c.HasMultipleIdentities() {
		if identifier != "" && c.Identity.Identifier != identifier {
			return nil, fmt.Errorf("challenge is for %s, not %s", c.Identity.Identifier, identifier)
		}
		return c, nil
	}

	names := make([]string, 0, len(c.Identities))
	for _, cand := range c.Identities {
		if cand.Identity.Identifier == identifier {
			return c.SelectIdentity(cand), nil
		}
		names = append(names, cand.Identity.Identifier)
	}
	return nil, fmt.Errorf("several identities match, choose one with -identity: %s", strings.Join(names, ", "))
}

func runAuthenticate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("authenticate", a.out)
	login := addLoginFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := challengeArg(fs)
	if err != nil {
		return err
	}
	cred, err := login.credential()
	if err != nil {
		return err
	}

	c, err := authChallenge(ctx, a, raw, *login.identity)
	if err != nil {
		return err
	}
	err = a.resolver.Authentication().Complete(ctx, models.CompleteRequest[*models.AuthenticationChallenge]{
		Challenge:  c,
		Credential: cred,
	})
	if err != nil {
		return describeFailure(err)
	}
	fmt.Fprintf(a.out, "logged in to %s as %s\n", c.ServiceProviderIdentifier, c.Identity.Identifier)
	if c.ReturnURL != "" {
		fmt.Fprintf(a.out, "continue at %s\n", c.ReturnURL)
	}
	return nil
}

func runOTP(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("otp", a.out)
	login := addLoginFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := challengeArg(fs)
	if err != nil {
		return err
	}
	cred, err := login.credential()
	if err != nil {
		return err
	}

	c, err := authChallenge(ctx, a, raw, *login.identity)
	if err != nil {
		return err
	}
	otp, err := a.resolver.Authentication().CompleteOTP(ctx, c, cred)
	if err != nil {
		return describeFailure(err)
	}
	fmt.Fprintln(a.out, otp)
	return nil
}

func runNotify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("notify", a.out)
	text := fs.String("text", "", "notification text")
	timeout := fs.String("timeout", "", "authentication timeout in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := challengeArg(fs)
	if err != nil {
		return err
	}

	push, _, err := a.notifications(ctx)
	if err != nil {
		return err
	}
	payload := map[string]string{
		notification.KeyText:      *text,
		notification.KeyChallenge: raw,
	}
	if *timeout != "" {
		payload[notification.KeyAuthenticationTimeout] = *timeout
	}
	handled, err := push.HandleMessage(ctx, payload)
	if err != nil {
		return err
	}
	if !handled {
		fmt.Fprintln(a.out, "payload ignored")
	}
	return nil
}

func runConsume(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("consume", a.out)
	parse := fs.Bool("parse", false, "also parse the pending challenge")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, cache, err := a.notifications(ctx)
	if err != nil {
		return err
	}
	raw, ok, err := cache.Consume(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "no pending challenge")
		return nil
	}
	fmt.Fprintln(a.out, raw)
	if !*parse {
		return nil
	}
	c, err := a.resolver.Parse(ctx, raw)
	if err != nil {
		return describeFailure(err)
	}
	describe(a.out, c)
	return nil
}

func runIdentities(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("identities", a.out)
	remove := fs.Int64("delete", 0, "delete the identity with this id")
	disable := fs.Int64("disable-biometric", 0, "turn biometric unlock off for this id")
	upgrade := fs.Int64("upgrade-biometric", 0, "turn biometric unlock on for this id, needs -pin")
	stopOffer := fs.Int64("stop-offer", 0, "stop offering biometric unlock for this id")
	pin := fs.String("pin", "", "PIN of the identity for -upgrade-biometric")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *remove != 0:
		if err := a.manager.Delete(ctx, *remove); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "identity %d deleted\n", *remove)
	case *disable != 0:
		if err := a.manager.DisableBiometric(ctx, *disable); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "biometric unlock disabled for identity %d\n", *disable)
	case *upgrade != 0:
		if *pin == "" {
			return errors.New("-pin is required")
		}
		item, err := findIdentity(ctx, a, *upgrade)
		if err != nil {
			return err
		}
		if err := a.resolver.Authentication().UpgradeBiometric(ctx, item.Identity, item.Provider, *pin); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "biometric unlock enabled for identity %d\n", *upgrade)
	case *stopOffer != 0:
		item, err := findIdentity(ctx, a, *stopOffer)
		if err != nil {
			return err
		}
		if err := a.resolver.Authentication().StopOfferBiometric(ctx, item.Identity, item.Provider); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "biometric unlock no longer offered for identity %d\n", *stopOffer)
	default:
		return listIdentities(ctx, a)
	}
	return nil
}

func listIdentities(ctx context.Context, a *app) error {
	all, err := a.manager.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(a.out, "no identities enrolled")
		return nil
	}
	for _, item := range all {
		var flags []string
		if item.Identity.Blocked {
			flags = append(flags, "blocked")
		}
		if item.Identity.BiometricInUse {
			flags = append(flags, "biometric")
		}
		fmt.Fprintf(a.out, "%4d  %-24s %-24s %s\n",
			item.Identity.ID, item.Identity.Identifier, item.Provider.DisplayName, strings.Join(flags, ","))
	}
	blocked, err := a.manager.AllBlocked(ctx)
	if err != nil {
		return err
	}
	if blocked {
		fmt.Fprintln(a.out, "all identities are blocked")
	}
	return nil
}

func findIdentity(ctx context.Context, a *app, id int64) (idmodels.IdentityWithProvider, error) {
	all, err := a.manager.List(ctx)
	if err != nil {
		return idmodels.IdentityWithProvider{}, err
	}
	for _, item := range all {
		if item.Identity.ID == id {
			return item, nil
		}
	}
	return idmodels.IdentityWithProvider{}, fmt.Errorf("no identity with id %d", id)
}
