// services/gate.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// Gate is the guard composed in front of every player action: the overdue
// sweep always runs first, then the busy-state allow-list.
type Gate struct {
	Store   *store.Store
	Catalog *content.Catalog
	Sweeper *OverdueSweeper
}

func NewGate(st *store.Store, cat *content.Catalog, sweeper *OverdueSweeper) *Gate {
	return &Gate{Store: st, Catalog: cat, Sweeper: sweeper}
}

// Admission is a passed gate check.
type Admission struct {
	Reminder *Reminder `json:"reminder,omitempty"`
}

// Admit decides whether playerID may run action.
func (g *Gate) Admit(ctx context.Context, playerID, action string) (Result[Admission], error) {
	sweep, err := g.Sweeper.Check(ctx, playerID)
	if err != nil {
		return Result[Admission]{Code: sweep.Code, Message: sweep.Message}, err
	}
	if !sweep.Success {
		return Result[Admission]{Code: sweep.Code, Message: sweep.Message}, nil
	}
	adm := Admission{Reminder: sweep.Data.Reminder}

	var p models.Player
	err = g.Store.DB.WithContext(ctx).Select("id", "state", "state_until").First(&p, "id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Failure[Admission](errNoPlayer()), nil
	}
	if err != nil {
		return settle("", adm, err)
	}
	if p.Busy() && !g.Catalog.BusyAllowed(action) {
		msg := fmt.Sprintf("You are %s and cannot do that now.", p.State)
		if p.StateUntil != nil {
			msg = fmt.Sprintf("You are %s until %s and cannot do that now.", p.State, p.StateUntil.Format(time.TimeOnly))
		}
		return Failure[Admission](apperr.WithMetadata(apperr.CodeBusy, msg, map[string]string{"action": action})), nil
	}
	return Ok("", adm), nil
}

// Guarded runs op behind the gate. The reminder, if any, is returned for the
// caller to surface after the action.
func Guarded[T any](ctx context.Context, g *Gate, playerID, action string, op func(context.Context) (Result[T], error)) (Result[T], *Reminder, error) {
	adm, err := g.Admit(ctx, playerID, action)
	if err != nil || !adm.Success {
		return Result[T]{Code: adm.Code, Message: adm.Message}, nil, err
	}
	res, err := op(ctx)
	return res, adm.Data.Reminder, err
}
