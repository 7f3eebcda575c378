package projections

import (
	"signup/internal/domain/activity"
	"signup/internal/domain/session"
)

// NoParticipantsText is the placeholder for an empty roster.
const NoParticipantsText = "No participants yet"

// ParticipantRow is one roster line on a card.
type ParticipantRow struct {
	Email     string
	CanRemove bool
}

// ActivityCard is everything a card shows for one activity.
type ActivityCard struct {
	Name            string
	Description     string
	Schedule        string
	MaxParticipants int
	SpotsLeft       int
	Full            bool
	Participants    []ParticipantRow
	CanRegister     bool
}

// HasParticipants reports whether the roster list should be rendered.
func (c ActivityCard) HasParticipants() bool {
	return len(c.Participants) > 0
}

// CatalogView is the full list view for one (catalog, session) pair.
type CatalogView struct {
	Cards          []ActivityCard
	CanManage      bool
	TeacherLabel   string
	NoParticipants string
}

// BuildCatalogView derives the list view from the catalog and session.
// Mutation controls are omitted entirely for anonymous visitors.
// PRE: none; a nil catalog yields an empty view
// POST: Cards are ordered by activity name
// INVARIANT: Pure; equal inputs give equal views
func BuildCatalogView(catalog activity.Catalog, sess session.Session) CatalogView {
	canManage := sess.CanManageRosters()
	view := CatalogView{
		Cards:          make([]ActivityCard, 0, len(catalog)),
		CanManage:      canManage,
		TeacherLabel:   sess.DisplayName(),
		NoParticipants: NoParticipantsText,
	}
	for _, a := range catalog.Sorted() {
		rows := make([]ParticipantRow, 0, len(a.Participants))
		for _, email := range a.Participants {
			rows = append(rows, ParticipantRow{Email: email, CanRemove: canManage})
		}
		view.Cards = append(view.Cards, ActivityCard{
			Name:            a.Name,
			Description:     a.Description,
			Schedule:        a.Schedule,
			MaxParticipants: a.MaxParticipants,
			SpotsLeft:       a.SpotsLeft(),
			Full:            a.IsFull(),
			Participants:    rows,
			CanRegister:     canManage,
		})
	}
	return view
}
