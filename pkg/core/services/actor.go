package services

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/permissions"
)

// Actor is the caller of a use case
type Actor struct {
	ID   string
	Role model.Role
}

// SystemActorID is recorded as the creator or reviewer of anything done by
// operator commands and scheduled jobs
const SystemActorID = "system"

// SystemActor is used by operator commands. It holds every capability.
var SystemActor = Actor{ID: SystemActorID, Role: model.RoleCoordinator}

// ActorFromProfile builds an actor from a loaded profile
func ActorFromProfile(p *model.Profile) Actor {
	return Actor{ID: p.ID, Role: p.Role}
}

// requireCapability returns ErrForbidden unless the actor's role grants c
func requireCapability(actor Actor, c model.Capability) error {
	if !permissions.Has(actor.Role, c) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, actor.Role, c)
	}
	return nil
}

var (
	validate     *validator.Validate
	skillTagExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9 _-]{0,31}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	validate.RegisterValidation("skilltag", func(fl validator.FieldLevel) bool {
		return skillTagExpr.MatchString(fl.Field().String())
	})
}
