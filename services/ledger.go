// services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cultivation-core/apperr"
	"cultivation-core/config"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// LedgerService owns every currency, inventory, shop stock and loan mutation.
type LedgerService struct {
	Store      *store.Store
	Catalog    *content.Catalog
	Clock      Clock
	BankConfig config.Bank
}

func NewLedgerService(st *store.Store, cat *content.Catalog, clock Clock, bank config.Bank) *LedgerService {
	return &LedgerService{Store: st, Catalog: cat, Clock: clock, BankConfig: bank}
}

// record appends an audit row inside tx.
func record(tx *gorm.DB, now time.Time, entry models.LedgerTransaction) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	return nil
}

func errNoPlayer() *apperr.Error {
	return apperr.New(apperr.CodePlayerNotFound, "You have not begun your cultivation yet.")
}

// loadPlayer fetches a player row for update.
func loadPlayer(tx *gorm.DB, id string) (*models.Player, error) {
	var p models.Player
	err := store.ForUpdate(tx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoPlayer()
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// InventoryView is a player's storage ring.
type InventoryView struct {
	Ring     string                 `json:"ring"`
	Capacity int                    `json:"capacity"`
	Used     int                    `json:"used"`
	Items    []models.InventoryItem `json:"items"`
}

// ItemChange is the post-operation count of one inventory key.
type ItemChange struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
	Count int    `json:"count"`
}

// StoreItem adds count units of name to the player's ring.
func (s *LedgerService) StoreItem(ctx context.Context, playerID, name string, count int) (res Result[ItemChange], err error) {
	ctx, span := startSpan(ctx, "ledger.StoreItem", playerID)
	defer func() { finish(span, res, err) }()

	var out ItemChange
	err = s.Store.Exclusive(ctx, []string{store.InventoryKey(playerID)}, func(tx *gorm.DB) error {
		var p models.Player
		if err := tx.Select("id", "ring").First(&p, "id = ?", playerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoPlayer()
			}
			return err
		}
		var e error
		out, e = s.storeItemTx(tx, s.Clock.Now(), &p, name, count)
		return e
	})
	return settle(fmt.Sprintf("Stored %d × %s.", count, name), out, err)
}

func (s *LedgerService) storeItemTx(tx *gorm.DB, now time.Time, p *models.Player, name string, count int) (ItemChange, error) {
	if count <= 0 {
		return ItemChange{}, apperr.New(apperr.CodeInvalidAmount, "Quantity must be positive.")
	}
	if !s.Catalog.Known(name) {
		return ItemChange{}, apperr.WithMetadata(apperr.CodeUnknownItem, fmt.Sprintf("There is no such thing as %q.", name), map[string]string{"item": name})
	}

	var row models.InventoryItem
	err := store.ForUpdate(tx).Where("player_id = ? AND name = ?", p.ID, name).First(&row).Error
	switch {
	case err == nil:
		row.Count += count
		if err := tx.Model(&row).Update("count", row.Count).Error; err != nil {
			return ItemChange{}, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		var used int64
		if err := tx.Model(&models.InventoryItem{}).Where("player_id = ?", p.ID).Count(&used).Error; err != nil {
			return ItemChange{}, err
		}
		capacity := s.Catalog.RingCapacity(p.Ring)
		if int(used) >= capacity {
			return ItemChange{}, apperr.WithMetadata(apperr.CodeCapacityExceeded,
				fmt.Sprintf("Your storage ring is full (%d/%d slots).", used, capacity),
				map[string]string{"item": name})
		}
		row = models.InventoryItem{ID: uuid.NewString(), PlayerID: p.ID, Name: name, Count: count}
		if err := tx.Create(&row).Error; err != nil {
			return ItemChange{}, err
		}
	default:
		return ItemChange{}, err
	}

	if err := record(tx, now, models.LedgerTransaction{
		PlayerID:     p.ID,
		Aggregate:    models.AggregateInventory,
		Type:         models.TxItemStore,
		Delta:        int64(count),
		BalanceAfter: int64(row.Count),
		Description:  fmt.Sprintf("Stored %d × %s", count, name),
		Metadata:     datatypes.JSONMap{"item": name},
	}); err != nil {
		return ItemChange{}, err
	}
	return ItemChange{Name: name, Delta: count, Count: row.Count}, nil
}

// RetrieveItem takes count units of name out of the ring.
func (s *LedgerService) RetrieveItem(ctx context.Context, playerID, name string, count int) (Result[ItemChange], error) {
	return s.removeItem(ctx, "ledger.RetrieveItem", playerID, name, count, models.TxItemRetrieve)
}

// DiscardItem destroys count units of name.
func (s *LedgerService) DiscardItem(ctx context.Context, playerID, name string, count int) (Result[ItemChange], error) {
	return s.removeItem(ctx, "ledger.DiscardItem", playerID, name, count, models.TxItemDiscard)
}

func (s *LedgerService) removeItem(ctx context.Context, op, playerID, name string, count int, kind models.TxType) (res Result[ItemChange], err error) {
	ctx, span := startSpan(ctx, op, playerID)
	defer func() { finish(span, res, err) }()

	var out ItemChange
	err = s.Store.Exclusive(ctx, []string{store.InventoryKey(playerID)}, func(tx *gorm.DB) error {
		var e error
		out, e = removeItemTx(tx, s.Clock.Now(), playerID, name, count, kind)
		return e
	})
	verb := "Retrieved"
	if kind == models.TxItemDiscard {
		verb = "Discarded"
	}
	return settle(fmt.Sprintf("%s %d × %s.", verb, count, name), out, err)
}

func removeItemTx(tx *gorm.DB, now time.Time, playerID, name string, count int, kind models.TxType) (ItemChange, error) {
	if count <= 0 {
		return ItemChange{}, apperr.New(apperr.CodeInvalidAmount, "Quantity must be positive.")
	}

	var row models.InventoryItem
	err := store.ForUpdate(tx).Where("player_id = ? AND name = ?", playerID, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ItemChange{}, apperr.WithMetadata(apperr.CodeNotFound, fmt.Sprintf("You have no %s.", name), map[string]string{"item": name})
	}
	if err != nil {
		return ItemChange{}, err
	}
	if row.Count < count {
		return ItemChange{}, apperr.WithMetadata(apperr.CodeInsufficientQuantity,
			fmt.Sprintf("You only have %d × %s.", row.Count, name),
			map[string]string{"item": name})
	}

	row.Count -= count
	if row.Count == 0 {
		err = tx.Delete(&row).Error
	} else {
		err = tx.Model(&row).Update("count", row.Count).Error
	}
	if err != nil {
		return ItemChange{}, err
	}

	if err := record(tx, now, models.LedgerTransaction{
		PlayerID:     playerID,
		Aggregate:    models.AggregateInventory,
		Type:         kind,
		Delta:        -int64(count),
		BalanceAfter: int64(row.Count),
		Description:  fmt.Sprintf("Removed %d × %s", count, name),
		Metadata:     datatypes.JSONMap{"item": name},
	}); err != nil {
		return ItemChange{}, err
	}
	return ItemChange{Name: name, Delta: -count, Count: row.Count}, nil
}

// Inventory lists the player's ring.
func (s *LedgerService) Inventory(ctx context.Context, playerID string) (res Result[InventoryView], err error) {
	ctx, span := startSpan(ctx, "ledger.Inventory", playerID)
	defer func() { finish(span, res, err) }()

	var p models.Player
	if err := s.Store.DB.WithContext(ctx).Select("id", "ring").First(&p, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Failure[InventoryView](errNoPlayer()), nil
		}
		return settle("", InventoryView{}, err)
	}
	var items []models.InventoryItem
	if err := s.Store.DB.WithContext(ctx).Where("player_id = ?", playerID).Order("name").Find(&items).Error; err != nil {
		return settle("", InventoryView{}, err)
	}
	view := InventoryView{
		Ring:     p.Ring,
		Capacity: s.Catalog.RingCapacity(p.Ring),
		Used:     len(items),
		Items:    items,
	}
	return Ok(fmt.Sprintf("%d/%d slots used.", view.Used, view.Capacity), view), nil
}

// EquipResult reports an equip swap.
type EquipResult struct {
	Slot     string `json:"slot"`
	Equipped string `json:"equipped"`
	Returned string `json:"returned,omitempty"`
}

// Equip moves a weapon or armor from the ring into its slot, returning the
// previously equipped piece to the ring.
func (s *LedgerService) Equip(ctx context.Context, playerID, name string) (res Result[EquipResult], err error) {
	ctx, span := startSpan(ctx, "ledger.Equip", playerID)
	defer func() { finish(span, res, err) }()

	item, ok := s.Catalog.Item(name)
	if !ok || (item.Type != "weapon" && item.Type != "armor") {
		return Failure[EquipResult](apperr.New(apperr.CodeUnknownItem, fmt.Sprintf("%s cannot be equipped.", name))), nil
	}

	var out EquipResult
	keys := []string{store.PlayerKey(playerID), store.InventoryKey(playerID)}
	err = s.Store.Exclusive(ctx, keys, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		if p.Level < item.RequiredLevel {
			return levelRequirement(s.Catalog, name, item.RequiredLevel)
		}
		if _, err := removeItemTx(tx, now, playerID, name, 1, models.TxItemRetrieve); err != nil {
			return err
		}

		out = EquipResult{Slot: item.Type, Equipped: name}
		slot := &p.EquippedWeapon
		column := "equipped_weapon"
		if item.Type == "armor" {
			slot = &p.EquippedArmor
			column = "equipped_armor"
		}
		if prev := *slot; prev != "" {
			if _, err := s.storeItemTx(tx, now, p, prev, 1); err != nil {
				return err
			}
			out.Returned = prev
		}
		*slot = name
		return tx.Model(p).Update(column, name).Error
	})
	return settle(fmt.Sprintf("You equip the %s.", name), out, err)
}

func levelRequirement(cat *content.Catalog, name string, required int) *apperr.Error {
	realm := fmt.Sprintf("level %d", required)
	if l, ok := cat.Level(required); ok {
		realm = l.Name
	}
	return apperr.WithMetadata(apperr.CodeLevelRequirement,
		fmt.Sprintf("%s requires %s.", name, realm),
		map[string]string{"item": name, "required_level": fmt.Sprint(required)})
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// HistoryPage is one page of a player's ledger history, newest first.
type HistoryPage struct {
	Page         int                        `json:"page"`
	Size         int                        `json:"size"`
	Total        int64                      `json:"total"`
	Transactions []models.LedgerTransaction `json:"transactions"`
}

// History returns the player's transaction log.
func (s *LedgerService) History(ctx context.Context, playerID string, page, size int) (res Result[HistoryPage], err error) {
	ctx, span := startSpan(ctx, "ledger.History", playerID)
	defer func() { finish(span, res, err) }()

	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	out := HistoryPage{Page: page, Size: size}
	q := s.Store.DB.WithContext(ctx).Model(&models.LedgerTransaction{}).Where("player_id = ?", playerID).Session(&gorm.Session{})
	if err := q.Count(&out.Total).Error; err != nil {
		return settle("", out, err)
	}
	if err := q.Order("created_at DESC").Order("id").Offset((page - 1) * size).Limit(size).Find(&out.Transactions).Error; err != nil {
		return settle("", out, err)
	}
	return Ok(fmt.Sprintf("%d transactions.", out.Total), out), nil
}

func logLedger(format string, args ...any) {
	log.Printf("✅ [LEDGER] "+format, args...)
}
