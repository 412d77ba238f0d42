package services

import (
	"fmt"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// MicActor is who may fire a mic action.
type MicActor string

const (
	ActorParticipant MicActor = "participant" // the participant, on themselves
	ActorAuthority   MicActor = "authority"   // owner, manager or host
	ActorSystem      MicActor = "system"
)

type micTransitionKey struct {
	from   models.MicStatus
	action models.MicAction
}

type micTransition struct {
	to    models.MicStatus
	actor MicActor
}

// micTransitions is the complete transition table. Any (status, action)
// pair not listed is invalid.
var micTransitions = map[micTransitionKey]micTransition{
	{models.MicStatusNone, models.MicActionRaiseHand}:    {models.MicStatusRequested, ActorParticipant},
	{models.MicStatusRequested, models.MicActionCancel}:  {models.MicStatusNone, ActorParticipant},
	{models.MicStatusRequested, models.MicActionGrant}:   {models.MicStatusGranted, ActorAuthority},
	{models.MicStatusRequested, models.MicActionDeny}:    {models.MicStatusNone, ActorAuthority},
	{models.MicStatusGranted, models.MicActionRevoke}:    {models.MicStatusNone, ActorAuthority},
	{models.MicStatusGranted, models.MicActionLeaveRoom}: {models.MicStatusNone, ActorSystem},
}

// ApplyMicAction returns the status reached by firing action in status
// from, or pkg.ErrInvalidTransition. It has no side effects.
func ApplyMicAction(from models.MicStatus, action models.MicAction) (models.MicStatus, error) {
	t, ok := micTransitions[micTransitionKey{from, action}]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", pkg.ErrInvalidTransition, action, from)
	}
	return t.to, nil
}

// MicActionActor returns who fires action.
func MicActionActor(action models.MicAction) MicActor {
	switch action {
	case models.MicActionRaiseHand, models.MicActionCancel:
		return ActorParticipant
	case models.MicActionLeaveRoom:
		return ActorSystem
	default:
		return ActorAuthority
	}
}

// micActionTarget is the status an action ends in. A retried action whose
// target already holds is a no-op.
func micActionTarget(action models.MicAction) models.MicStatus {
	switch action {
	case models.MicActionRaiseHand:
		return models.MicStatusRequested
	case models.MicActionGrant:
		return models.MicStatusGranted
	default:
		return models.MicStatusNone
	}
}
