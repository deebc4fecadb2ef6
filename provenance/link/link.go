package link

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EconomicLink is the immutable edge record of the provenance graph. It is
// created once by a collaborator action and never mutated or deleted; a
// relationship is undone only by adding a compensating edge.
type EconomicLink struct {
	ID              uuid.UUID   `json:"id"`
	Type            LinkType    `json:"type"`
	Parent          ArtifactRef `json:"parent"`
	Child           ArtifactRef `json:"child"`
	CreatingEventID uuid.UUID   `json:"creatingEventId"`
	CreatedAt       time.Time   `json:"createdAt"`
	Payload         Payload     `json:"payload,omitempty"`
}

// NewEconomicLink constructs a validated edge. Invariants enforced here and
// never relaxed: parent and child differ, the pairing appears in the link
// type's compatibility table, the creating event is present, and any payload
// is both valid and accepted by the link type.
func NewEconomicLink(linkType LinkType, parent, child ArtifactRef, creatingEventID uuid.UUID, payload Payload) (EconomicLink, error) {
	if !linkType.Valid() {
		return EconomicLink{}, NewDomainError(ErrorUnknownLinkType, "type", fmt.Sprintf("unknown link type %q", string(linkType)))
	}

	if err := parent.Validate(); err != nil {
		return EconomicLink{}, wrapField(err, "parent")
	}

	if err := child.Validate(); err != nil {
		return EconomicLink{}, wrapField(err, "child")
	}

	if parent == child {
		return EconomicLink{}, NewDomainError(ErrorSelfLink, "child", "parent and child must reference different artifacts")
	}

	if !linkType.Allows(parent.Type, child.Type) {
		return EconomicLink{}, NewDomainError(
			ErrorInvalidPairing,
			"type",
			fmt.Sprintf("link type %s does not allow %s -> %s", linkType, parent.Type, child.Type),
		)
	}

	if creatingEventID == uuid.Nil {
		return EconomicLink{}, NewDomainError(ErrorMissingProvenance, "creatingEventId", "creating event id is required")
	}

	if payload != nil {
		if !linkType.AllowsPayload(payload.Kind()) {
			return EconomicLink{}, NewDomainError(
				ErrorPayloadNotAllowed,
				"payload",
				fmt.Sprintf("link type %s does not accept payload kind %q", linkType, payload.Kind()),
			)
		}

		if err := payload.Validate(); err != nil {
			return EconomicLink{}, err
		}
	}

	return EconomicLink{
		ID:              uuid.New(),
		Type:            linkType,
		Parent:          parent,
		Child:           child,
		CreatingEventID: creatingEventID,
		CreatedAt:       time.Now().UTC(),
		Payload:         payload,
	}, nil
}

// Key returns the logical uniqueness key (type, parent, child) of the edge.
func (l EconomicLink) Key() string {
	return string(l.Type) + "|" + l.Parent.String() + "|" + l.Child.String()
}

// wrapField prefixes the field path of a nested DomainError.
func wrapField(err error, prefix string) error {
	domainErr, ok := err.(DomainError)
	if !ok {
		return err
	}

	if domainErr.Field == "" {
		domainErr.Field = prefix
	} else {
		domainErr.Field = prefix + "." + domainErr.Field
	}

	return domainErr
}
