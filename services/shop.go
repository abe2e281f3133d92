// services/shop.go
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
	"gorm.io/gorm/clause"

	"cultivation-core/apperr"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/store"
)

// StockChange is the post-operation stock of a listing.
type StockChange struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

// DecrementShopItemStock reserves one unit. The conditional update is the
// single source of truth, so concurrent callers never oversell.
func (s *LedgerService) DecrementShopItemStock(ctx context.Context, name string) (res Result[StockChange], err error) {
	ctx, span := startSpan(ctx, "ledger.DecrementShopItemStock", "")
	defer func() { finish(span, res, err) }()

	out := StockChange{Name: name}
	err = s.Store.Exclusive(ctx, []string{store.ShopKey}, func(tx *gorm.DB) error {
		var e error
		out.Stock, e = adjustStockTx(tx, s.Clock.Now(), name, -1)
		return e
	})
	return settle(fmt.Sprintf("%s: %d left.", name, out.Stock), out, err)
}

// IncrementShopItemStock releases one reserved unit.
func (s *LedgerService) IncrementShopItemStock(ctx context.Context, name string) (res Result[StockChange], err error) {
	ctx, span := startSpan(ctx, "ledger.IncrementShopItemStock", "")
	defer func() { finish(span, res, err) }()

	out := StockChange{Name: name}
	err = s.Store.Exclusive(ctx, []string{store.ShopKey}, func(tx *gorm.DB) error {
		var e error
		out.Stock, e = adjustStockTx(tx, s.Clock.Now(), name, +1)
		return e
	})
	return settle(fmt.Sprintf("%s: %d left.", name, out.Stock), out, err)
}

func adjustStockTx(tx *gorm.DB, now time.Time, name string, delta int) (int, error) {
	q := tx.Model(&models.ShopItem{}).Where("name = ?", name)
	if delta < 0 {
		q = q.Where("stock >= ?", -delta)
	}
	upd := q.Update("stock", gorm.Expr("stock + ?", delta))
	if upd.Error != nil {
		return 0, upd.Error
	}

	var item models.ShopItem
	if err := tx.Where("name = ?", name).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.WithMetadata(apperr.CodeNotFound, fmt.Sprintf("The shop does not sell %s.", name), map[string]string{"item": name})
		}
		return 0, err
	}
	if upd.RowsAffected == 0 {
		return item.Stock, apperr.WithMetadata(apperr.CodeOutOfStock, fmt.Sprintf("%s is out of stock.", name), map[string]string{"item": name})
	}

	kind := models.TxStockReserve
	if delta > 0 {
		kind = models.TxStockRelease
	}
	err := record(tx, now, models.LedgerTransaction{
		Aggregate:    models.AggregateShop,
		Type:         kind,
		Delta:        int64(delta),
		BalanceAfter: int64(item.Stock),
		Description:  fmt.Sprintf("%s stock %+d", name, delta),
		Metadata:     datatypes.JSONMap{"item": name},
	})
	return item.Stock, err
}

// ListShop returns the listings in display order.
func (s *LedgerService) ListShop(ctx context.Context) (res Result[[]models.ShopItem], err error) {
	ctx, span := startSpan(ctx, "ledger.ListShop", "")
	defer func() { finish(span, res, err) }()

	var items []models.ShopItem
	if err := s.Store.DB.WithContext(ctx).Order("position").Find(&items).Error; err != nil {
		return settle[[]models.ShopItem]("", nil, err)
	}
	return Ok(fmt.Sprintf("%d listings.", len(items)), items), nil
}

// RestockShop upserts every default listing, resetting price and stock.
func (s *LedgerService) RestockShop(ctx context.Context) (res Result[int], err error) {
	ctx, span := startSpan(ctx, "ledger.RestockShop", "")
	defer func() { finish(span, res, err) }()

	defaults := s.Catalog.ShopDefaults()
	err = s.Store.Exclusive(ctx, []string{store.ShopKey}, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		for i, e := range defaults {
			row := models.ShopItem{
				ID:       uuid.NewString(),
				Name:     e.Item,
				Slug:     content.Slug(e.Item),
				Price:    e.Price,
				Stock:    e.Stock,
				Position: i,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"slug", "price", "stock", "position", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("restock %s: %w", e.Item, err)
			}
		}
		return record(tx, now, models.LedgerTransaction{
			Aggregate:   models.AggregateShop,
			Type:        models.TxStockRestock,
			Description: fmt.Sprintf("Restocked %d listings", len(defaults)),
		})
	})
	if err == nil {
		log.Printf("✅ [SCHEDULER] Shop restocked (%d listings)", len(defaults))
	}
	return settle("The shop has been restocked.", len(defaults), err)
}

// Receipt describes a completed purchase.
type Receipt struct {
	Item      string `json:"item"`
	Price     int64  `json:"price"`
	Currency  int64  `json:"currency"`
	StockLeft int    `json:"stock_left"`
	Count     int    `json:"count"`
}

// Purchase buys one unit of the listing behind slug: reserve stock, check the
// level requirement, debit currency, store the item. A failure after the
// reservation releases the unit again.
func (s *LedgerService) Purchase(ctx context.Context, playerID, itemSlug string) (res Result[Receipt], err error) {
	ctx, span := startSpan(ctx, "ledger.Purchase", playerID)
	defer func() { finish(span, res, err) }()

	name, ok := s.Catalog.BySlug(itemSlug)
	if !ok {
		return Failure[Receipt](apperr.New(apperr.CodeUnknownItem, "The shop does not sell that.")), nil
	}

	reserved, err := s.DecrementShopItemStock(ctx, name)
	if err != nil || !reserved.Success {
		return Result[Receipt]{Code: reserved.Code, Message: reserved.Message}, err
	}

	var out Receipt
	keys := []string{store.PlayerKey(playerID), store.InventoryKey(playerID)}
	err = s.Store.Exclusive(ctx, keys, func(tx *gorm.DB) error {
		now := s.Clock.Now()
		p, err := loadPlayer(tx, playerID)
		if err != nil {
			return err
		}
		if req := s.Catalog.RequiredLevel(name); p.Level < req {
			return levelRequirement(s.Catalog, name, req)
		}

		var listing models.ShopItem
		if err := tx.Where("name = ?", name).First(&listing).Error; err != nil {
			return err
		}
		if p.Currency < listing.Price {
			return apperr.WithMetadata(apperr.CodeInsufficientFunds,
				fmt.Sprintf("%s costs %s spirit stones; you have %s.", name, amount(listing.Price), amount(p.Currency)),
				map[string]string{"item": name})
		}

		p.Currency -= listing.Price
		if err := tx.Model(p).Update("currency", p.Currency).Error; err != nil {
			return err
		}
		change, err := s.storeItemTx(tx, now, p, name, 1)
		if err != nil {
			return err
		}
		out = Receipt{Item: name, Price: listing.Price, Currency: p.Currency, StockLeft: reserved.Data.Stock, Count: change.Count}
		return record(tx, now, models.LedgerTransaction{
			PlayerID:     playerID,
			Aggregate:    models.AggregateWallet,
			Type:         models.TxPurchase,
			Delta:        -listing.Price,
			BalanceAfter: p.Currency,
			Description:  fmt.Sprintf("Bought %s", name),
			Metadata:     datatypes.JSONMap{"item": name, "price": listing.Price},
		})
	})
	if err != nil {
		if rel, relErr := s.IncrementShopItemStock(ctx, name); relErr != nil || !rel.Success {
			log.Printf("⚠️  [LEDGER] Failed to release reserved %s: %s %v", name, rel.Message, relErr)
		}
		return settle("", Receipt{}, err)
	}

	logLedger("%s bought %s for %d", playerID, name, out.Price)
	return Ok(fmt.Sprintf("You bought %s for %s spirit stones.", name, amount(out.Price)), out), nil
}
